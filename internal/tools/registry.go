// Package tools is the closed catalogue of functions the model may invoke.
// Every tool carries a JSON Schema contract; arguments are validated before
// the tool runs, and an unknown name or rejected input becomes an error
// result relayed back to the model rather than a dropped turn.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xenolinkco/xenochat/internal/llm"
	"github.com/xenolinkco/xenochat/internal/logging"
)

type Tool struct {
	Name        string
	Description string
	// Schema is the JSON Schema source for the input object. Compiled once
	// at registration.
	Schema string
	// Parameters is the schema as a plain object, declared to the model.
	Parameters map[string]any
	// PartitionKey derives the serialization key from validated arguments.
	// Tools returning the same key never run concurrently, so a read
	// issued after a write in the same batch observes it. Nil means the
	// tool has no partition and always runs concurrently.
	PartitionKey func(args map[string]any) string
	Run          func(ctx context.Context, args map[string]any) (any, error)

	compiled *jsonschema.Schema
}

type Registry struct {
	tools map[string]*Tool
	order []string

	mu         sync.Mutex
	partitions map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		partitions: make(map[string]*sync.Mutex),
	}
}

func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("register tool: duplicate name %q", t.Name)
	}
	compiled, err := jsonschema.CompileString(t.Name+".schema.json", t.Schema)
	if err != nil {
		return fmt.Errorf("register tool %q: compile schema: %w", t.Name, err)
	}
	t.compiled = compiled
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Definitions returns the tool catalogue in registration order, for the
// model request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Result is one executed (or rejected) tool call.
type Result struct {
	Name   string
	Output any
	Err    error
}

// Execute validates and runs a single call.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Result {
	t, ok := r.tools[call.Name]
	if !ok {
		return Result{Name: call.Name, Err: fmt.Errorf("unknown tool %q", call.Name)}
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := t.compiled.Validate(map[string]any(args)); err != nil {
		return Result{Name: call.Name, Err: fmt.Errorf("invalid arguments for %q: %w", call.Name, err)}
	}

	if t.PartitionKey != nil {
		if key := t.PartitionKey(args); key != "" {
			lock := r.partitionLock(key)
			lock.Lock()
			defer lock.Unlock()
		}
	}

	out, err := t.Run(ctx, args)
	if err != nil {
		return Result{Name: call.Name, Err: err}
	}
	return Result{Name: call.Name, Output: out}
}

// ExecuteBatch runs calls concurrently across partitions, but calls sharing
// a partition key run sequentially in call order, so a read issued after a
// write in the same batch observes it. Results keep call order.
func (r *Registry) ExecuteBatch(ctx context.Context, calls []llm.ToolCall) []Result {
	results := make([]Result, len(calls))
	log := logging.L("tools")

	// Group same-partition calls; everything else is its own group.
	groups := make(map[string][]int)
	var order []string
	for i, call := range calls {
		key := fmt.Sprintf("#%d", i)
		if t, ok := r.tools[call.Name]; ok && t.PartitionKey != nil {
			if pk := t.PartitionKey(call.Args); pk != "" {
				key = pk
			}
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	var wg sync.WaitGroup
	for _, key := range order {
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			for _, i := range indices {
				results[i] = r.Execute(ctx, calls[i])
				if results[i].Err != nil {
					log.Warnw("tool call failed", "tool", calls[i].Name, "error", results[i].Err)
				}
			}
		}(groups[key])
	}
	wg.Wait()
	return results
}

func (r *Registry) partitionLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.partitions[key]
	if !ok {
		lock = &sync.Mutex{}
		r.partitions[key] = lock
	}
	return lock
}
