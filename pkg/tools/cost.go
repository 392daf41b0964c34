package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
)

const CostToolName = "calculate_defect_cost_impact"

// CostAction is the disposition of the affected units.
type CostAction string

const (
	ActionScrap  CostAction = "SCRAP"
	ActionRework CostAction = "REWORK"
)

// Label is the wording used in the tool output.
func (a CostAction) Label() string {
	if a == ActionScrap {
		return "SCRAP (Total Loss)"
	}
	return string(a)
}

// CostInput describes one production batch.
type CostInput struct {
	BatchSize         int
	DefectRate        float64
	UnitCost          float64
	ReworkCostPerUnit float64
	IsScrap           bool
}

// CostEstimate is the outcome of EstimateCost.
type CostEstimate struct {
	AffectedUnits int
	Action        CostAction
	EstimatedLoss float64
}

// Validate rejects rates outside [0,1] and negative quantities.
func (in CostInput) Validate() error {
	switch {
	case in.BatchSize < 0:
		return fmt.Errorf("batch_size must not be negative, got %d", in.BatchSize)
	case math.IsNaN(in.DefectRate) || in.DefectRate < 0 || in.DefectRate > 1:
		return fmt.Errorf("defect_rate must be between 0.0 and 1.0, got %v", in.DefectRate)
	case in.UnitCost < 0:
		return fmt.Errorf("unit_cost must not be negative, got %v", in.UnitCost)
	case in.ReworkCostPerUnit < 0:
		return fmt.Errorf("rework_cost_per_unit must not be negative, got %v", in.ReworkCostPerUnit)
	}
	return nil
}

// EstimateCost computes the loss for a batch. It performs no validation.
func EstimateCost(in CostInput) CostEstimate {
	affected := int(math.Floor(float64(in.BatchSize) * in.DefectRate))
	if in.IsScrap {
		return CostEstimate{AffectedUnits: affected, Action: ActionScrap, EstimatedLoss: float64(affected) * in.UnitCost}
	}
	return CostEstimate{AffectedUnits: affected, Action: ActionRework, EstimatedLoss: float64(affected) * in.ReworkCostPerUnit}
}

func (e CostEstimate) String() string {
	return fmt.Sprintf("Action: %s, Affected: %d, Est. Loss: $%s", e.Action.Label(), e.AffectedUnits, formatCurrency(e.EstimatedLoss))
}

// formatCurrency renders v with thousands separators and two decimals.
func formatCurrency(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// CostTool exposes EstimateCost to the cost specialist.
type CostTool struct{}

func NewCostTool() *CostTool { return &CostTool{} }

func (c *CostTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        CostToolName,
		Description: "Calculates the financial impact of PCB defects based on production data. Returns the action (scrap or rework), affected unit count and estimated loss.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"batch_size": map[string]any{
					"type":        "integer",
					"description": "Total PCBs in batch.",
				},
				"defect_rate": map[string]any{
					"type":        "number",
					"description": "Defect rate (0.0 - 1.0).",
				},
				"unit_cost": map[string]any{
					"type":        "number",
					"description": "Cost per unit.",
				},
				"rework_cost_per_unit": map[string]any{
					"type":        "number",
					"description": "Cost to repair one unit, if reworkable. Defaults to 0.",
				},
				"is_scrap": map[string]any{
					"type":        "boolean",
					"description": "True if defective units are scrapped (total loss), false if reworkable. Defaults to true.",
				},
			},
			"required": []any{"batch_size", "defect_rate", "unit_cost"},
		},
		Examples: []map[string]any{
			{"batch_size": 1000, "defect_rate": 0.05, "unit_cost": 12.5, "is_scrap": true},
		},
	}
}

func (c *CostTool) Invoke(_ context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	in, err := costInputFromArgs(req.Arguments)
	if err == nil {
		err = in.Validate()
	}
	if err != nil {
		return agent.ToolResponse{}, pcberrors.New(err).
			Component("tools").
			Category(pcberrors.CategoryInputValidation).
			Context("tool", CostToolName).
			Build()
	}
	est := EstimateCost(in)
	return agent.ToolResponse{
		Content: est.String(),
		Metadata: map[string]string{
			"action":         string(est.Action),
			"affected_units": strconv.Itoa(est.AffectedUnits),
		},
	}, nil
}

func costInputFromArgs(args map[string]any) (CostInput, error) {
	var (
		in  CostInput
		err error
	)
	if in.BatchSize, err = intArg(args, "batch_size"); err != nil {
		return in, err
	}
	if in.DefectRate, err = floatArg(args, "defect_rate"); err != nil {
		return in, err
	}
	if in.UnitCost, err = floatArg(args, "unit_cost"); err != nil {
		return in, err
	}
	if in.ReworkCostPerUnit, err = optionalFloat(args, "rework_cost_per_unit", 0); err != nil {
		return in, err
	}
	if in.IsScrap, err = optionalBool(args, "is_scrap", true); err != nil {
		return in, err
	}
	return in, nil
}
