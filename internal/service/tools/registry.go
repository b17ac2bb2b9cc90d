// Package tools holds the functions the model may ask to run.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

// Tool is a function callable by the model by its name
type Tool interface {
	Name() string

	// One line shown to the model in the tool list
	Description() string

	Execute(ctx context.Context, args map[string]string) (string, error)
}

// Registry is a dispatch table of tools
// Registration happens at start-up, lookups are safe to run concurrently
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register tool, a tool with the same name is replaced
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Describe returns "name: description" lines in registration order
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lines := make([]string, 0, len(r.order))
	for _, name := range r.order {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, r.tools[name].Description()))
	}
	return strings.Join(lines, "\n")
}

// Dispatch runs the tool named in call
// Unregistered name returns apperrors.ErrUnknownTool, handler errors are returned wrapped
func (r *Registry) Dispatch(ctx context.Context, call models.ToolCall) (string, error) {
	t, ok := r.Lookup(call.Name)
	if !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownTool, call.Name)
	}

	args := call.Args
	if args == nil {
		args = map[string]string{}
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		return "", fmt.Errorf("tool %s failed. Err: %w", call.Name, err)
	}

	return result, nil
}
