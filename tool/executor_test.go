package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func sleepTool(name string, d time.Duration) Tool {
	return Func(name, "Sleeps then answers.", Schema{}, func(ctx context.Context, _ json.RawMessage) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d):
			return name + " done", nil
		}
	})
}

func TestExecutorTimeout(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(sleepTool("slow", time.Second)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	e := NewExecutor(r, 10*time.Millisecond)

	_, err := e.Execute(context.Background(), "slow", json.RawMessage(`{}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want deadline exceeded", err)
	}
}

func TestExecutorExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(sleepTool("fast", time.Millisecond)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	e := NewExecutor(r, 0) // DefaultTimeout

	out, err := e.Execute(context.Background(), "fast", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "fast done" {
		t.Errorf("Execute() = %q", out)
	}
}

func TestExecuteParallel(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Register(sleepTool(name, 5*time.Millisecond)); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	e := NewExecutor(r, time.Second)

	start := time.Now()
	results := e.ExecuteParallel(context.Background(), []Call{
		{ID: "1", Name: "a", Input: json.RawMessage(`{}`)},
		{ID: "2", Name: "b", Input: json.RawMessage(`{}`)},
		{ID: "3", Name: "c", Input: json.RawMessage(`{}`)},
	})
	elapsed := time.Since(start)

	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Name != want {
			t.Errorf("results[%d].Name = %q, want %q (call order)", i, results[i].Name, want)
		}
		if results[i].Err != nil {
			t.Errorf("results[%d].Err = %v", i, results[i].Err)
		}
		if results[i].Output != want+" done" {
			t.Errorf("results[%d].Output = %q", i, results[i].Output)
		}
	}
	// Parallel, not sequential: well under 3x the per-tool sleep.
	if elapsed > 100*time.Millisecond {
		t.Errorf("batch took %s", elapsed)
	}
}

func TestExecuteParallelReportsPerCallErrors(t *testing.T) {
	boom := errors.New("backend down")
	r := NewRegistry()
	if err := r.Register(Func("ok", "Works.", Schema{}, func(context.Context, json.RawMessage) (string, error) {
		return "fine", nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(Func("bad", "Fails.", Schema{}, func(context.Context, json.RawMessage) (string, error) {
		return "", boom
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	e := NewExecutor(r, time.Second)

	results := e.ExecuteParallel(context.Background(), []Call{
		{Name: "ok", Input: json.RawMessage(`{}`)},
		{Name: "bad", Input: json.RawMessage(`{}`)},
		{Name: "missing", Input: json.RawMessage(`{}`)},
	})

	if results[0].Err != nil {
		t.Errorf("ok call failed: %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("bad call error = %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, ErrNotFound) {
		t.Errorf("missing call error = %v", results[2].Err)
	}
}
