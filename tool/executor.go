package tool

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultTimeout bounds a single tool execution when unconfigured.
const DefaultTimeout = 30 * time.Second

// Executor runs registered tools with a per-execution timeout.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

// NewExecutor creates an Executor. A non-positive timeout means
// DefaultTimeout.
func NewExecutor(registry *Registry, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{registry: registry, timeout: timeout}
}

// Execute validates and runs one tool under the executor's timeout.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.registry.Execute(execCtx, name, input)
}

// Call is one tool invocation in a batch.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Result is the outcome of one batched invocation.
type Result struct {
	ID       string
	Name     string
	Output   string
	Err      error
	Duration time.Duration
}

// ExecuteParallel runs the calls concurrently, each under its own
// timeout. Results are returned in call order.
func (e *Executor) ExecuteParallel(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(idx int, c Call) {
			defer wg.Done()
			start := time.Now()
			output, err := e.Execute(ctx, c.Name, c.Input)
			results[idx] = Result{
				ID:       c.ID,
				Name:     c.Name,
				Output:   output,
				Err:      err,
				Duration: time.Since(start),
			}
		}(i, call)
	}
	wg.Wait()
	return results
}
