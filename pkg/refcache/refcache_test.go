package refcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnsureLoaded_SingleFlight(t *testing.T) {
	var calls atomic.Int64
	c := New()
	c.Register("cats", func(ctx context.Context, name string) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []any{map[string]any{"id": float64(1), "name": "A"}}, nil
	})

	const n = 16
	results := make([][]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			options, err := c.EnsureLoaded(context.Background(), "cats")
			if err != nil {
				t.Errorf("EnsureLoaded: %v", err)
				return
			}
			results[i] = options
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one provider invocation, got %d", got)
	}
	for i := 1; i < n; i++ {
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Fatalf("caller %d saw a different list (-first +this):\n%s", i, diff)
		}
	}
	if c.State("cats") != StateLoaded {
		t.Fatalf("expected loaded state, got %s", c.State("cats"))
	}
}

func TestEnsureLoaded_CachesAcrossCalls(t *testing.T) {
	var calls atomic.Int64
	c := New()
	c.Register("tags", func(ctx context.Context, name string) (any, error) {
		calls.Add(1)
		return `{"result":[{"id":7,"name":"go"}]}`, nil
	})

	for i := 0; i < 3; i++ {
		options, err := c.EnsureLoaded(context.Background(), "tags")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(options) != 1 {
			t.Fatalf("call %d: expected one option, got %d", i, len(options))
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one provider call, got %d", calls.Load())
	}
}

func TestEnsureLoaded_StaticAndPreResolvedSources(t *testing.T) {
	c := New()
	c.Register("colors", []any{"red", "blue"})

	options, err := c.EnsureLoaded(context.Background(), "colors")
	if err != nil {
		t.Fatalf("static source: %v", err)
	}
	if len(options) != 2 || options[0] != "red" || options[1] != "blue" {
		t.Fatalf("order not preserved: %v", options)
	}
}

func TestEnsureLoaded_ProviderFailureSettlesEmpty(t *testing.T) {
	var calls atomic.Int64
	var hookErr error
	hookDone := make(chan struct{})
	c := New(WithErrorHook(func(name string, err error) {
		hookErr = err
		close(hookDone)
	}))
	c.Register("broken", func(ctx context.Context, name string) (any, error) {
		calls.Add(1)
		return nil, errors.New("backend down")
	})

	options, err := c.EnsureLoaded(context.Background(), "broken")
	if err == nil {
		t.Fatalf("first call should surface the provider error")
	}
	if len(options) != 0 {
		t.Fatalf("failed load should settle with an empty list, got %v", options)
	}

	// Retries resolve from the settled entry without looping the provider.
	options, err = c.EnsureLoaded(context.Background(), "broken")
	if err != nil || len(options) != 0 {
		t.Fatalf("settled failure should resolve empty without error, got %v, %v", options, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("provider should not be retried, got %d calls", calls.Load())
	}

	select {
	case <-hookDone:
	case <-time.After(time.Second):
		t.Fatalf("error hook was not invoked")
	}
	if hookErr == nil {
		t.Fatalf("hook should receive the provider error")
	}
}

func TestEnsureLoaded_MissingProvider(t *testing.T) {
	c := New()
	options, err := c.EnsureLoaded(context.Background(), "ghost")
	if err == nil {
		t.Fatalf("expected configuration error for missing provider")
	}
	if len(options) != 0 {
		t.Fatalf("expected empty list, got %v", options)
	}
}

func TestClear_Refetches(t *testing.T) {
	var calls atomic.Int64
	c := New()
	c.Register("cats", func(ctx context.Context, name string) (any, error) {
		return fmt.Sprintf(`[{"id":%d}]`, calls.Add(1)), nil
	})

	if _, err := c.EnsureLoaded(context.Background(), "cats"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	c.Clear()
	if c.State("cats") != StateIdle {
		t.Fatalf("expected idle after clear, got %s", c.State("cats"))
	}
	if _, err := c.EnsureLoaded(context.Background(), "cats"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected refetch after Clear, got %d calls", calls.Load())
	}
}

func TestEnsureLoaded_CancelledLoadDoesNotSettle(t *testing.T) {
	var calls atomic.Int64
	c := New()
	c.Register("cats", func(ctx context.Context, name string) (any, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []any{
			map[string]any{"value": "1", "name": "A"},
			map[string]any{"value": "2", "name": "B"},
		}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.EnsureLoaded(ctx, "cats"); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled load should return context.Canceled, got %v", err)
	}
	if got := c.State("cats"); got != StateIdle {
		t.Fatalf("cancelled load should leave the entry idle, got %s", got)
	}

	// A later caller fetches for real instead of inheriting an empty list.
	options, err := c.EnsureLoaded(context.Background(), "cats")
	if err != nil {
		t.Fatalf("reload after cancelled load: %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("expected the real option list, got %v", options)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a fresh provider call, got %d calls", calls.Load())
	}
	if c.State("cats") != StateLoaded {
		t.Fatalf("expected loaded state after reload, got %s", c.State("cats"))
	}
}
