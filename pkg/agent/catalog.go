package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/pcb-agent/pkg/models"
)

// registry is a name-keyed set that remembers registration order. Keys are
// case-insensitive and trimmed.
type registry[T any] struct {
	kind  string
	mu    sync.RWMutex
	items map[string]T
	names map[string]string
	order []string
}

func newRegistry[T any](kind string) *registry[T] {
	return &registry[T]{kind: kind, items: make(map[string]T), names: make(map[string]string)}
}

func registryKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *registry[T]) add(name string, item T) error {
	key := registryKey(name)
	if key == "" {
		return fmt.Errorf("%s name is empty", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; exists {
		return fmt.Errorf("%s %s already registered", r.kind, name)
	}
	r.items[key] = item
	r.names[key] = name
	r.order = append(r.order, key)
	return nil
}

func (r *registry[T]) get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[registryKey(name)]
	return item, ok
}

// list returns the items in registration order.
func (r *registry[T]) list() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.items[key])
	}
	return out
}

// registered returns the names as given at registration.
func (r *registry[T]) registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.names[key])
	}
	return out
}

// ToolCatalog resolves tools by name and lists their specifications.
type ToolCatalog interface {
	Lookup(name string) (Tool, ToolSpec, bool)
	Specs() []ToolSpec
}

type catalogEntry struct {
	tool Tool
	spec ToolSpec
}

// StaticToolCatalog is the in-memory ToolCatalog backing every agent.
type StaticToolCatalog struct {
	entries *registry[catalogEntry]
}

// NewStaticToolCatalog constructs a catalog seeded with the provided tools.
func NewStaticToolCatalog(tools ...Tool) (*StaticToolCatalog, error) {
	c := &StaticToolCatalog{entries: newRegistry[catalogEntry]("tool")}
	for _, tool := range tools {
		if err := c.Register(tool); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a tool under its spec name. Duplicate names return an error.
func (c *StaticToolCatalog) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	spec := tool.Spec()
	return c.entries.add(spec.Name, catalogEntry{tool: tool, spec: spec})
}

// Lookup returns the tool and its specification if present.
func (c *StaticToolCatalog) Lookup(name string) (Tool, ToolSpec, bool) {
	e, ok := c.entries.get(name)
	if !ok {
		return nil, ToolSpec{}, false
	}
	return e.tool, e.spec, true
}

// Specs returns the tool specifications in registration order.
func (c *StaticToolCatalog) Specs() []ToolSpec {
	entries := c.entries.list()
	specs := make([]ToolSpec, 0, len(entries))
	for _, e := range entries {
		specs = append(specs, e.spec)
	}
	return specs
}

func (c *StaticToolCatalog) Names() []string { return c.entries.registered() }

// Definitions converts the catalog into the form models expect.
func Definitions(c ToolCatalog) []models.ToolDefinition {
	specs := c.Specs()
	defs := make([]models.ToolDefinition, 0, len(specs))
	for _, spec := range specs {
		defs = append(defs, models.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.InputSchema,
		})
	}
	return defs
}

// StaticSubAgentDirectory holds the specialists a supervisor may delegate to.
type StaticSubAgentDirectory struct {
	entries *registry[SubAgent]
}

// NewStaticSubAgentDirectory constructs a directory from the provided sub-agents.
func NewStaticSubAgentDirectory(subagents ...SubAgent) (*StaticSubAgentDirectory, error) {
	d := &StaticSubAgentDirectory{entries: newRegistry[SubAgent]("sub-agent")}
	for _, sa := range subagents {
		if err := d.Register(sa); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *StaticSubAgentDirectory) Register(subAgent SubAgent) error {
	if subAgent == nil {
		return fmt.Errorf("sub-agent is nil")
	}
	return d.entries.add(subAgent.Name(), subAgent)
}

func (d *StaticSubAgentDirectory) Lookup(name string) (SubAgent, bool) { return d.entries.get(name) }

// All returns the registered sub-agents in registration order.
func (d *StaticSubAgentDirectory) All() []SubAgent { return d.entries.list() }

func (d *StaticSubAgentDirectory) Names() []string { return d.entries.registered() }
