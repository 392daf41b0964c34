package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name string
		in   CostInput
		want CostEstimate
	}{
		{
			name: "scrap",
			in:   CostInput{BatchSize: 1000, DefectRate: 0.05, UnitCost: 12.5, IsScrap: true},
			want: CostEstimate{AffectedUnits: 50, Action: ActionScrap, EstimatedLoss: 625},
		},
		{
			name: "rework uses rework cost",
			in:   CostInput{BatchSize: 1000, DefectRate: 0.05, UnitCost: 12.5, ReworkCostPerUnit: 3, IsScrap: false},
			want: CostEstimate{AffectedUnits: 50, Action: ActionRework, EstimatedLoss: 150},
		},
		{
			name: "affected units floor",
			in:   CostInput{BatchSize: 99, DefectRate: 0.05, UnitCost: 10, IsScrap: true},
			want: CostEstimate{AffectedUnits: 4, Action: ActionScrap, EstimatedLoss: 40},
		},
		{
			name: "zero rate",
			in:   CostInput{BatchSize: 500, DefectRate: 0, UnitCost: 10, IsScrap: true},
			want: CostEstimate{AffectedUnits: 0, Action: ActionScrap, EstimatedLoss: 0},
		},
		{
			name: "whole batch",
			in:   CostInput{BatchSize: 10, DefectRate: 1, UnitCost: 2.5, IsScrap: true},
			want: CostEstimate{AffectedUnits: 10, Action: ActionScrap, EstimatedLoss: 25},
		},
		{
			name: "rework without rework cost",
			in:   CostInput{BatchSize: 10, DefectRate: 0.5, UnitCost: 100},
			want: CostEstimate{AffectedUnits: 5, Action: ActionRework, EstimatedLoss: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateCost(tt.in))
		})
	}
}

func TestCostEstimateString(t *testing.T) {
	est := EstimateCost(CostInput{BatchSize: 100000, DefectRate: 0.1, UnitCost: 123.456, IsScrap: true})
	assert.Equal(t, "Action: SCRAP (Total Loss), Affected: 10000, Est. Loss: $1,234,560.00", est.String())

	est = EstimateCost(CostInput{BatchSize: 10, DefectRate: 0.3, ReworkCostPerUnit: 7.5})
	assert.Equal(t, "Action: REWORK, Affected: 3, Est. Loss: $22.50", est.String())
}

func TestFormatCurrency(t *testing.T) {
	cases := map[float64]string{
		0:         "0.00",
		999.999:   "1,000.00",
		1234.5:    "1,234.50",
		100000:    "100,000.00",
		-98765.43: "-98,765.43",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatCurrency(in), "input %v", in)
	}
}

func TestCostValidate(t *testing.T) {
	assert.NoError(t, CostInput{BatchSize: 1, DefectRate: 0.5, UnitCost: 1}.Validate())
	assert.Error(t, CostInput{BatchSize: -1, DefectRate: 0.5}.Validate())
	assert.Error(t, CostInput{BatchSize: 1, DefectRate: 1.2}.Validate())
	assert.Error(t, CostInput{BatchSize: 1, DefectRate: -0.1}.Validate())
	assert.Error(t, CostInput{BatchSize: 1, DefectRate: 0.1, UnitCost: -3}.Validate())
}

func TestCostToolInvoke(t *testing.T) {
	tool := NewCostTool()
	assert.Equal(t, CostToolName, tool.Spec().Name)

	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{
		"batch_size":  float64(200),
		"defect_rate": "0.1",
		"unit_cost":   5,
	}})
	require.NoError(t, err)
	assert.Equal(t, "Action: SCRAP (Total Loss), Affected: 20, Est. Loss: $100.00", resp.Content)
	assert.Equal(t, "SCRAP", resp.Metadata["action"])

	resp, err = tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{
		"batch_size":           200,
		"defect_rate":          0.1,
		"unit_cost":            5,
		"rework_cost_per_unit": 1.25,
		"is_scrap":             "false",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Action: REWORK, Affected: 20, Est. Loss: $25.00", resp.Content)
}

func TestCostToolRejectsBadArguments(t *testing.T) {
	tool := NewCostTool()
	cases := []map[string]any{
		{"defect_rate": 0.1, "unit_cost": 5},
		{"batch_size": 10, "defect_rate": 1.5, "unit_cost": 5},
		{"batch_size": 10.5, "defect_rate": 0.1, "unit_cost": 5},
		{"batch_size": 10, "defect_rate": "lots", "unit_cost": 5},
	}
	for _, args := range cases {
		_, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: args})
		require.Error(t, err, "args %v", args)
		assert.True(t, errors.Is(err, pcberrors.ErrInputValidation))
	}
}

func TestReflectTool(t *testing.T) {
	tool := NewReflectTool()
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{
		"reflection": "IPC-6012 class 3 requires microsection analysis",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Reflection recorded for Protocol Agent: IPC-6012 class 3 requires microsection analysis", resp.Content)

	_, err = tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{}})
	assert.Error(t, err)
}
