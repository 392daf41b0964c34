// Package subagents defines the three PCB specialists and the supervisor
// instruction that coordinates them.
package subagents

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	"github.com/Protocol-Lattice/pcb-agent/pkg/models"
)

const (
	defectDescription   = "Uses computer vision to detect physical defects on PCB images. Returns a list of defects with type, confidence, location and evidence images."
	costDescription     = "Calculates the financial impact of PCB defects (scrap vs. rework) and checks real-time market prices for materials such as gold and copper."
	protocolDescription = "Designs IPC standard-compliant testing protocols and QA checklists for identified PCB defects, using web search for standards."
)

// Toolset holds the tools the specialists are built over.
type Toolset struct {
	Detect  agent.Tool
	Cost    agent.Tool
	Market  agent.Tool
	Search  agent.Tool
	Reflect agent.Tool
}

func (ts Toolset) validate() error {
	var errs []error
	for _, t := range []struct {
		name string
		tool agent.Tool
	}{
		{"detect", ts.Detect},
		{"cost", ts.Cost},
		{"market", ts.Market},
		{"search", ts.Search},
		{"reflect", ts.Reflect},
	} {
		if t.tool == nil {
			errs = append(errs, fmt.Errorf("%s tool is not configured", t.name))
		}
	}
	return errors.Join(errs...)
}

// Settings are shared by all three specialists.
type Settings struct {
	Model         models.ChatModel
	MaxIterations int
	ParallelTools bool
	Logger        *slog.Logger
	Observer      agent.Observer
}

func (s Settings) options(name, description, instruction string, tools ...agent.Tool) agent.Options {
	return agent.Options{
		Name:          name,
		Description:   description,
		Instruction:   instruction,
		Model:         s.Model,
		Tools:         tools,
		MaxIterations: s.MaxIterations,
		ParallelTools: s.ParallelTools,
		Logger:        s.Logger,
		Observer:      s.Observer,
	}
}

// NewDefectAgent builds defect-analysis-agent over the detection tool.
func NewDefectAgent(s Settings, detect agent.Tool) (*agent.Specialist, error) {
	return agent.NewSpecialist(s.options(agent.DefectAgentName, defectDescription, DefectInstruction, detect))
}

// NewCostAgent builds cost-analysis-agent over the cost and market price tools.
func NewCostAgent(s Settings, cost, market agent.Tool) (*agent.Specialist, error) {
	return agent.NewSpecialist(s.options(agent.CostAgentName, costDescription, CostInstruction, cost, market))
}

// NewProtocolAgent builds test-protocol-agent over search and reflection.
func NewProtocolAgent(s Settings, search, reflect agent.Tool) (*agent.Specialist, error) {
	return agent.NewSpecialist(s.options(agent.ProtocolAgentName, protocolDescription, ProtocolInstruction, search, reflect))
}

// NewTeam builds the three specialists in the order the supervisor lists them.
func NewTeam(s Settings, ts Toolset) ([]agent.SubAgent, error) {
	if err := ts.validate(); err != nil {
		return nil, err
	}
	defect, err := NewDefectAgent(s, ts.Detect)
	if err != nil {
		return nil, err
	}
	cost, err := NewCostAgent(s, ts.Cost, ts.Market)
	if err != nil {
		return nil, err
	}
	protocol, err := NewProtocolAgent(s, ts.Search, ts.Reflect)
	if err != nil {
		return nil, err
	}
	return []agent.SubAgent{defect, cost, protocol}, nil
}
