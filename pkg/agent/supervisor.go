package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/models"
)

// SupervisorOptions configure a Supervisor.
type SupervisorOptions struct {
	Instruction   string
	Model         models.ChatModel
	SubAgents     []SubAgent
	MaxIterations int
	Logger        *slog.Logger
	Observer      Observer
}

// Supervisor routes work to specialists through the task tool and synthesizes
// their reports. Delegations run one at a time.
type Supervisor struct {
	loop      *Specialist
	directory *StaticSubAgentDirectory
	logger    *slog.Logger
}

// NewSupervisor builds the supervisor over the given specialists.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if len(opts.SubAgents) == 0 {
		return nil, fmt.Errorf("supervisor requires at least one sub-agent")
	}
	dir, err := NewStaticSubAgentDirectory(opts.SubAgents...)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loop, err := NewSpecialist(Options{
		Name:          "supervisor",
		Description:   "Coordinates the PCB specialist agents.",
		Instruction:   opts.Instruction,
		Model:         opts.Model,
		Tools:         []Tool{NewTaskTool(dir, logger, opts.Observer)},
		MaxIterations: opts.MaxIterations,
		Logger:        logger,
		Observer:      opts.Observer,
	})
	if err != nil {
		return nil, err
	}
	return &Supervisor{loop: loop, directory: dir, logger: logger.With("agent", "supervisor")}, nil
}

// SubAgents returns the roster in registration order.
func (s *Supervisor) SubAgents() []SubAgent { return s.directory.All() }

// Invoke runs the supervisor over a copy of conv.
func (s *Supervisor) Invoke(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	out, _, err := s.InvokeTraced(ctx, conv)
	return out, err
}

// InvokeTraced runs the supervisor and returns the delegation trace of this invocation.
func (s *Supervisor) InvokeTraced(ctx context.Context, conv models.Conversation) (models.Conversation, *Trace, error) {
	var input string
	if u, ok := conv.Last().(models.UserTurn); ok {
		input = u.Text
	}
	trace := NewTrace(ClassifyIntent(input))
	s.logger.Info("input analyzed", "state", StateAnalyzeInput, "intent", trace.Intent().String())

	out, err := s.loop.Invoke(WithTrace(ctx, trace), conv)
	if err != nil {
		s.logger.Error("supervisor failed", append(logAttrs(err), "delegations", trace.Delegations())...)
		return out, trace, err
	}

	trace.Synthesize()
	for _, gap := range trace.Missing() {
		s.logger.Warn("delegation policy not followed", "intent", trace.Intent().String(), "gap", gap)
	}
	return out, trace, nil
}

// Chat answers a single text message.
func (s *Supervisor) Chat(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", pcberrors.Newf("input text is empty").
			Component("agent").
			Category(pcberrors.CategoryInputValidation).
			Build()
	}
	conv, err := s.Invoke(ctx, models.NewConversation(text))
	if err != nil {
		return "", pcberrors.New(err).
			Component("agent").
			Category(orchestrationCategory(err)).
			Build()
	}
	return FinalReply(conv), nil
}

// AnalyzeImage asks the supervisor to inspect the image at path.
func (s *Supervisor) AnalyzeImage(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", pcberrors.Newf("image path is empty").
			Component("agent").
			Category(pcberrors.CategoryInputValidation).
			Build()
	}
	return s.Chat(ctx, ImageInstruction(path))
}

// orchestrationCategory keeps an existing category and defaults the rest.
func orchestrationCategory(err error) pcberrors.ErrorCategory {
	if c := pcberrors.CategoryOf(err); c != pcberrors.CategoryGeneric {
		return c
	}
	return pcberrors.CategoryOrchestration
}

func logAttrs(err error) []any {
	var ee *pcberrors.EnhancedError
	if pcberrors.As(err, &ee) {
		return ee.LogAttrs()
	}
	return []any{"error", err}
}
