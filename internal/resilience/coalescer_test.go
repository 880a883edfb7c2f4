package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/llmgate/llmgate/pkg/types"
)

func TestCoalescer_ConcurrentCallersShareOneInvocation(t *testing.T) {
	c := NewCoalescer(time.Second)

	var invocations atomic.Int64
	fn := func(ctx context.Context) (*types.ChatResponse, error) {
		invocations.Add(1)
		time.Sleep(50 * time.Millisecond)
		return &types.ChatResponse{ID: fmt.Sprintf("call-%d", invocations.Load())}, nil
	}

	const callers = 5
	results := make([]*types.ChatResponse, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Execute(context.Background(), "k", fn)
			if err != nil {
				t.Errorf("Execute() error = %v", err)
				return
			}
			results[i] = resp
		}(i)
	}
	wg.Wait()

	if got := invocations.Load(); got != 1 {
		t.Errorf("invocations = %d, want 1", got)
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Errorf("caller %d observed a different response", i)
		}
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after settle", c.Pending())
	}
}

func TestCoalescer_ErrorsAreShared(t *testing.T) {
	c := NewCoalescer(time.Second)

	wantErr := fmt.Errorf("upstream exploded")
	fn := func(ctx context.Context) (*types.ChatResponse, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Execute(context.Background(), "k", fn)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != wantErr {
			t.Errorf("caller %d: err = %v, want shared error", i, err)
		}
	}
}

func TestCoalescer_DistinctKeysDoNotCoalesce(t *testing.T) {
	c := NewCoalescer(time.Second)

	var invocations atomic.Int64
	fn := func(ctx context.Context) (*types.ChatResponse, error) {
		invocations.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &types.ChatResponse{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.Execute(context.Background(), fmt.Sprintf("k%d", i), fn)
		}(i)
	}
	wg.Wait()

	if got := invocations.Load(); got != 3 {
		t.Errorf("invocations = %d, want 3", got)
	}
}

func TestCoalescer_SequentialCallsInvokeEachTime(t *testing.T) {
	c := NewCoalescer(time.Second)

	var invocations atomic.Int64
	fn := func(ctx context.Context) (*types.ChatResponse, error) {
		invocations.Add(1)
		return &types.ChatResponse{}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Execute(context.Background(), "k", fn); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if got := invocations.Load(); got != 3 {
		t.Errorf("invocations = %d, want 3 (entries removed on settle)", got)
	}
}

func TestCoalescer_StaleEntryBypassedAfterWindow(t *testing.T) {
	c := NewCoalescer(30 * time.Millisecond)

	var invocations atomic.Int64
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstResp *types.ChatResponse
	go func() {
		defer wg.Done()
		firstResp, _ = c.Execute(context.Background(), "k", func(ctx context.Context) (*types.ChatResponse, error) {
			invocations.Add(1)
			close(firstStarted)
			<-releaseFirst
			return &types.ChatResponse{ID: "first"}, nil
		})
	}()

	<-firstStarted
	time.Sleep(50 * time.Millisecond) // let the pending entry go stale

	// A new caller past the window starts its own invocation.
	resp, err := c.Execute(context.Background(), "k", func(ctx context.Context) (*types.ChatResponse, error) {
		invocations.Add(1)
		return &types.ChatResponse{ID: "second"}, nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.ID != "second" {
		t.Errorf("resp.ID = %q, want the fresh invocation", resp.ID)
	}

	close(releaseFirst)
	wg.Wait()

	// The original caller still receives its own resolution.
	if firstResp == nil || firstResp.ID != "first" {
		t.Errorf("first caller resp = %v, want the original resolution", firstResp)
	}
	if got := invocations.Load(); got != 2 {
		t.Errorf("invocations = %d, want 2", got)
	}
}

func TestCoalescer_JoinerContextCancellation(t *testing.T) {
	c := NewCoalescer(time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Execute(context.Background(), "k", func(ctx context.Context) (*types.ChatResponse, error) {
			close(started)
			<-release
			return &types.ChatResponse{}, nil
		})
	}()

	<-started
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Execute(ctx, "k", func(ctx context.Context) (*types.ChatResponse, error) {
		t.Error("joiner must not invoke fn")
		return nil, nil
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	close(release)
	wg.Wait()
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}
