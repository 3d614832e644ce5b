// Package executor defines the contract between the execution engine and the
// per-integration reaction executors that call third-party APIs. The engine
// treats executors as black boxes: a returned error or a logical
// {Success: false} result are both attempt failures.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xraph/cascade/registry"
)

// Result is the outcome of one executor invocation.
type Result struct {
	// Success indicates the reaction took effect.
	Success bool `json:"success"`

	// Output is the reaction's output payload.
	Output map[string]any `json:"output,omitempty"`

	// Error describes a logical failure when Success is false.
	Error string `json:"error,omitempty"`
}

// Executor runs one reaction against a third-party service.
type Executor interface {
	// ExecuteReaction invokes the reaction with its interpolated config and
	// resolved credentials. It may return an error instead of Result{Success: false}.
	ExecuteReaction(ctx context.Context, reactionType string, config map[string]any, creds registry.Credentials) (Result, error)
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, reactionType string, config map[string]any, creds registry.Credentials) (Result, error)

// ExecuteReaction implements Executor.
func (f Func) ExecuteReaction(ctx context.Context, reactionType string, config map[string]any, creds registry.Credentials) (Result, error) {
	return f(ctx, reactionType, config, creds)
}

// Registry routes reaction types to per-service executors by the "<service>."
// prefix of the type.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor // keyed by service id
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register binds a service id to its executor, replacing any previous binding.
func (r *Registry) Register(serviceID string, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[serviceID] = ex
}

// ExecuteReaction implements Executor by routing to the service-registered
// executor for the reaction type.
func (r *Registry) ExecuteReaction(ctx context.Context, reactionType string, config map[string]any, creds registry.Credentials) (Result, error) {
	serviceID, _, ok := strings.Cut(reactionType, ".")
	if !ok {
		return Result{}, fmt.Errorf("executor: malformed reaction type %q", reactionType)
	}

	r.mu.RLock()
	ex, found := r.executors[serviceID]
	r.mu.RUnlock()

	if !found {
		return Result{}, fmt.Errorf("executor: no executor registered for service %q", serviceID)
	}

	return ex.ExecuteReaction(ctx, reactionType, config, creds)
}
