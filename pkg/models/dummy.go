package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DummyChat echoes the latest user text. Useful for local runs without API calls.
type DummyChat struct {
	Prefix string
}

func NewDummyChat(prefix string) *DummyChat {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyChat{Prefix: prefix}
}

func (d *DummyChat) Complete(_ context.Context, req Request) (Response, error) {
	last := "<empty prompt>"
	for i := len(req.Conversation) - 1; i >= 0; i-- {
		if u, ok := req.Conversation[i].(UserTurn); ok {
			if text := strings.TrimSpace(u.Text); text != "" {
				last = text
			}
			break
		}
	}
	return Response{Text: fmt.Sprintf("%s %s", d.Prefix, last)}, nil
}

// ErrScriptExhausted is returned by ScriptedChat once every step has been consumed.
var ErrScriptExhausted = errors.New("scripted model: no more responses")

// ScriptedChat replays a fixed list of responses and records every request it saw.
type ScriptedChat struct {
	mu       sync.Mutex
	steps    []Response
	requests []Request
}

func NewScriptedChat(steps ...Response) *ScriptedChat {
	return &ScriptedChat{steps: steps}
}

func (s *ScriptedChat) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req.Conversation = req.Conversation.Clone()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return Response{}, ErrScriptExhausted
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next, nil
}

// Requests returns the requests received so far.
func (s *ScriptedChat) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Call is shorthand for a response that requests a single tool call.
func Call(id, name string, args map[string]any) Response {
	return Response{ToolCalls: []ToolCallTurn{{ID: id, Name: name, Arguments: args}}}
}

// Say is shorthand for a final text response.
func Say(text string) Response {
	return Response{Text: text}
}

var (
	_ ChatModel = (*DummyChat)(nil)
	_ ChatModel = (*ScriptedChat)(nil)
)
