package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/models"
)

// DefaultMaxIterations bounds the Decide/Execute loop of every agent.
const DefaultMaxIterations = 10

// Options configure a new Specialist.
type Options struct {
	Name          string
	Description   string
	Instruction   string
	Model         models.ChatModel
	Tools         []Tool
	MaxIterations int
	// ParallelTools dispatches the tool calls of a single model step concurrently.
	ParallelTools bool
	Logger        *slog.Logger
	Observer      Observer
}

// Specialist is a tool-using agent: it asks the model for the next step, runs the
// requested tools and feeds their results back until the model answers in text.
// A Specialist is immutable after construction and safe for concurrent use.
type Specialist struct {
	name          string
	description   string
	instruction   string
	model         models.ChatModel
	catalog       *StaticToolCatalog
	definitions   []models.ToolDefinition
	maxIterations int
	parallel      bool
	logger        *slog.Logger
	observer      Observer
}

// NewSpecialist validates opts and builds the agent.
func NewSpecialist(opts Options) (*Specialist, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.New("agent requires a name")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("agent %s requires a language model", opts.Name)
	}
	catalog, err := NewStaticToolCatalog(opts.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", opts.Name, err)
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var observer Observer = nopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}

	return &Specialist{
		name:          opts.Name,
		description:   opts.Description,
		instruction:   opts.Instruction,
		model:         opts.Model,
		catalog:       catalog,
		definitions:   Definitions(catalog),
		maxIterations: maxIter,
		parallel:      opts.ParallelTools,
		logger:        logger.With("agent", opts.Name),
		observer:      observer,
	}, nil
}

func (s *Specialist) Name() string        { return s.name }
func (s *Specialist) Description() string { return s.description }
func (s *Specialist) Instruction() string { return s.instruction }

// Tools returns the specifications of the tools this agent may call.
func (s *Specialist) Tools() []ToolSpec { return s.catalog.Specs() }

// Run executes a single delegated task and returns the agent's final reply.
func (s *Specialist) Run(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", pcberrors.Newf("agent %s: task description is empty", s.name).
			Component("agent").
			Category(pcberrors.CategoryInputValidation).
			Build()
	}
	conv, err := s.Invoke(ctx, models.NewConversation(input))
	if err != nil {
		return "", err
	}
	return FinalReply(conv), nil
}

// Invoke runs the loop over a copy of conv and returns the extended conversation.
// The loop stops on the first model response without tool calls; reaching
// MaxIterations first yields an iteration-limit error together with the partial conversation.
func (s *Specialist) Invoke(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	conv = conv.Clone()
	for iteration := 1; iteration <= s.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return conv, err
		}

		start := time.Now()
		resp, err := s.model.Complete(ctx, models.Request{
			System:       s.instruction,
			Conversation: conv,
			Tools:        s.definitions,
		})
		s.observer.ObserveModelCall(s.name, time.Since(start), err)
		if err != nil {
			return conv, fmt.Errorf("agent %s: %w", s.name, err)
		}
		conv = append(conv, resp.Turns()...)

		if len(resp.ToolCalls) == 0 {
			s.logger.Debug("final answer", "iteration", iteration)
			return conv, nil
		}

		results, err := s.execute(ctx, resp.ToolCalls)
		if err != nil {
			return conv, err
		}
		for _, r := range results {
			conv = append(conv, r)
		}
	}

	return conv, pcberrors.Newf("agent %s: no final answer after %d iterations", s.name, s.maxIterations).
		Component("agent").
		Category(pcberrors.CategoryIterationLimit).
		Context("agent", s.name).
		Context("max_iterations", s.maxIterations).
		Build()
}

// execute runs every call and returns the results in request order. Only
// cancellation of ctx aborts; tool failures are reported back to the model.
func (s *Specialist) execute(ctx context.Context, calls []models.ToolCallTurn) ([]models.ToolResultTurn, error) {
	results := make([]models.ToolResultTurn, len(calls))
	if !s.parallel || len(calls) == 1 {
		for i, call := range calls {
			results[i] = s.dispatch(ctx, call)
		}
	} else {
		var g errgroup.Group
		for i, call := range calls {
			g.Go(func() error {
				results[i] = s.dispatch(ctx, call)
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Specialist) dispatch(ctx context.Context, call models.ToolCallTurn) models.ToolResultTurn {
	result := models.ToolResultTurn{CallID: call.ID, Name: call.Name}

	tool, _, ok := s.catalog.Lookup(call.Name)
	if !ok {
		result.IsError = true
		result.Result = fmt.Sprintf("Error: unknown tool %q. Available tools: %s", call.Name, strings.Join(s.catalog.Names(), ", "))
		s.logger.Warn("unknown tool requested", "tool", call.Name)
		return result
	}

	start := time.Now()
	resp, err := tool.Invoke(ctx, ToolRequest{Arguments: call.Arguments})
	elapsed := time.Since(start)
	s.observer.ObserveToolCall(s.name, call.Name, elapsed, err != nil)
	if err != nil {
		result.IsError = true
		result.Result = "Error: " + err.Error()
		s.logger.Warn("tool failed", "tool", call.Name, "duration_ms", elapsed.Milliseconds(), "error", err)
		return result
	}
	s.logger.Debug("tool completed", "tool", call.Name, "duration_ms", elapsed.Milliseconds())
	result.Result = resp.Content
	return result
}

var _ SubAgent = (*Specialist)(nil)
