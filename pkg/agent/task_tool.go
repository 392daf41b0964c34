package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cast"
)

// TaskToolName is the single tool offered to the supervisor.
const TaskToolName = "task"

// TaskTool adapts the sub-agent directory to the Tool interface. It is the
// supervisor's only delegation primitive.
type TaskTool struct {
	directory *StaticSubAgentDirectory
	logger    *slog.Logger
	observer  Observer
}

// NewTaskTool creates the delegation tool over dir.
func NewTaskTool(dir *StaticSubAgentDirectory, logger *slog.Logger, observer Observer) *TaskTool {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &TaskTool{directory: dir, logger: logger.With("tool", TaskToolName), observer: observer}
}

func (t *TaskTool) Spec() ToolSpec {
	var desc strings.Builder
	desc.WriteString("Delegate a task to a specialist sub-agent and wait for its report. Available agents:\n")
	names := make([]any, 0)
	for _, sa := range t.directory.All() {
		fmt.Fprintf(&desc, "- %s: %s\n", sa.Name(), sa.Description())
		names = append(names, sa.Name())
	}
	return ToolSpec{
		Name:        TaskToolName,
		Description: strings.TrimSpace(desc.String()),
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subagent_type": map[string]any{
					"type":        "string",
					"description": "Exact name of the specialist to delegate to.",
					"enum":        names,
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Self-contained task for the specialist, including any data it needs from earlier steps.",
				},
			},
			"required": []string{"subagent_type", "description"},
		},
	}
}

func (t *TaskTool) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	name := strings.TrimSpace(cast.ToString(req.Arguments["subagent_type"]))
	description := strings.TrimSpace(cast.ToString(req.Arguments["description"]))

	sa, ok := t.directory.Lookup(name)
	if !ok {
		return ToolResponse{}, fmt.Errorf("unknown subagent_type %q; valid types are: %s", name, strings.Join(t.directory.Names(), ", "))
	}
	if description == "" {
		return ToolResponse{}, fmt.Errorf("missing or invalid 'description' argument")
	}

	if tr := TraceFromContext(ctx); tr != nil {
		if err := tr.Delegate(sa.Name()); err != nil {
			t.logger.Debug("delegation outside policy", "specialist", sa.Name())
		}
		t.logger.Info("delegating", "specialist", sa.Name(), "state", tr.State())
	}
	t.observer.ObserveDelegation(sa.Name())

	result, err := sa.Run(ctx, description)
	if err != nil {
		return ToolResponse{}, err
	}
	return ToolResponse{
		Content:  result,
		Metadata: map[string]string{"subagent": sa.Name()},
	}, nil
}

var _ Tool = (*TaskTool)(nil)
