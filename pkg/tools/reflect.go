package tools

import (
	"context"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
)

const ReflectToolName = "think_tool"

// ReflectTool acknowledges a reflection note. It keeps no state.
type ReflectTool struct{}

func NewReflectTool() *ReflectTool { return &ReflectTool{} }

func (r *ReflectTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name: ReflectToolName,
		Description: "Records a strategic reflection on testing protocol progress. Use it after each step " +
			"(finding IPC standards, searching external context) to assess findings, identify missing " +
			"mandatory tests and decide whether to search more or finalize the protocol.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reflection": map[string]any{
					"type":        "string",
					"description": "Detailed reflection on protocol progress, findings, gaps and next steps.",
				},
			},
			"required": []any{"reflection"},
		},
	}
}

func (r *ReflectTool) Invoke(_ context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	note, err := stringArg(req.Arguments, "reflection")
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{Content: "Reflection recorded for Protocol Agent: " + note}, nil
}
