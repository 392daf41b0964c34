package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Names of the fixed specialist roster.
const (
	DefectAgentName   = "defect-analysis-agent"
	CostAgentName     = "cost-analysis-agent"
	ProtocolAgentName = "test-protocol-agent"
)

// ImageInstructionPrefix starts the instruction synthesized for image inputs.
const ImageInstructionPrefix = "Analyze the PCB image located at: "

// ImageInstruction builds the supervisor instruction for an image path.
func ImageInstruction(path string) string {
	return ImageInstructionPrefix + path
}

// State is a step of the supervisor's delegation policy.
type State string

const (
	StateAnalyzeInput     State = "analyze_input"
	StateDelegateDefect   State = "delegate_defect"
	StateDelegateCost     State = "delegate_cost"
	StateDelegateProtocol State = "delegate_protocol"
	StateSynthesize       State = "synthesize"
)

// Intent is the coarse classification of a supervisor input.
type Intent int

const (
	IntentGeneral Intent = iota
	IntentDefectReport
	IntentProtocolRequest
)

func (i Intent) String() string {
	switch i {
	case IntentDefectReport:
		return "defect_report"
	case IntentProtocolRequest:
		return "protocol_request"
	default:
		return "general"
	}
}

var (
	imagePathRegex = regexp.MustCompile(`(?i)\.(png|jpe?g|bmp|tiff?)\b`)
	protocolRegex  = regexp.MustCompile(`(?i)\b(protocol|ipc|standards?|test(ing)?\s+(plan|procedure)|inspection\s+plan)\b`)
	defectRegex    = regexp.MustCompile(`(?i)\b(defects?|missing[\s_]hole|mouse[\s_]bite|open[\s_]circuit|short|spur|spurious[\s_]copper|solder|scrap|rework)\b`)
)

// ClassifyIntent inspects the input text and returns its intent.
func ClassifyIntent(input string) Intent {
	in := strings.TrimSpace(input)
	if in == "" {
		return IntentGeneral
	}

	// 🖼️ 1. Image inputs always start with detection
	if strings.HasPrefix(in, ImageInstructionPrefix) || imagePathRegex.MatchString(in) {
		return IntentDefectReport
	}

	// 📋 2. Explicit requests for standards or test procedures
	if protocolRegex.MatchString(in) {
		return IntentProtocolRequest
	}

	// 🔍 3. Reported defects
	if defectRegex.MatchString(in) {
		return IntentDefectReport
	}

	return IntentGeneral
}

// stateFor maps a specialist name onto the delegation state it represents.
func stateFor(specialist string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(specialist)) {
	case DefectAgentName:
		return StateDelegateDefect, true
	case CostAgentName:
		return StateDelegateCost, true
	case ProtocolAgentName:
		return StateDelegateProtocol, true
	}
	return "", false
}

// Transition is one recorded move of the policy state machine.
type Transition struct {
	From       State
	To         State
	Specialist string
	At         time.Time
}

// Trace records the delegation path of one supervisor invocation.
type Trace struct {
	mu          sync.Mutex
	intent      Intent
	state       State
	transitions []Transition
}

// NewTrace starts a trace in StateAnalyzeInput.
func NewTrace(intent Intent) *Trace {
	return &Trace{intent: intent, state: StateAnalyzeInput}
}

func (t *Trace) Intent() Intent { return t.intent }

// State returns the current state.
func (t *Trace) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Delegate moves the machine to the state of the named specialist.
func (t *Trace) Delegate(specialist string) error {
	to, ok := stateFor(specialist)
	if !ok {
		return fmt.Errorf("no delegation state for %q", specialist)
	}
	t.move(to, specialist)
	return nil
}

// Synthesize moves the machine to its terminal state.
func (t *Trace) Synthesize() {
	t.move(StateSynthesize, "")
}

func (t *Trace) move(to State, specialist string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transitions = append(t.transitions, Transition{From: t.state, To: to, Specialist: specialist, At: time.Now()})
	t.state = to
}

// Transitions returns a copy of the recorded transitions.
func (t *Trace) Transitions() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Transition(nil), t.transitions...)
}

// Delegations lists the specialists invoked, in order.
func (t *Trace) Delegations() []string {
	var names []string
	for _, tr := range t.Transitions() {
		if tr.Specialist != "" {
			names = append(names, tr.Specialist)
		}
	}
	return names
}

// Missing reports expected delegations the invocation did not make. The supervisor
// logs these; they never fail a request.
func (t *Trace) Missing() []string {
	var (
		missing     []string
		sawDefect   bool
		costAfter   bool
		sawProtocol bool
	)
	for _, tr := range t.Transitions() {
		switch tr.To {
		case StateDelegateDefect:
			sawDefect = true
			costAfter = false
		case StateDelegateCost:
			if !sawDefect {
				missing = append(missing, CostAgentName+" ran before "+DefectAgentName)
			}
			costAfter = true
		case StateDelegateProtocol:
			sawProtocol = true
		}
	}

	if t.intent == IntentDefectReport && !sawDefect {
		missing = append(missing, DefectAgentName+" not consulted for a defect report")
	}
	if sawDefect && !costAfter {
		missing = append(missing, CostAgentName+" did not follow "+DefectAgentName)
	}
	if t.intent == IntentProtocolRequest && !sawProtocol {
		missing = append(missing, ProtocolAgentName+" not consulted for a protocol request")
	}
	return missing
}

type traceKey struct{}

// WithTrace attaches tr to ctx so the task tool can record delegations.
func WithTrace(ctx context.Context, tr *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, tr)
}

// TraceFromContext returns the trace attached to ctx, if any.
func TraceFromContext(ctx context.Context) *Trace {
	tr, _ := ctx.Value(traceKey{}).(*Trace)
	return tr
}
