package usi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// gateRunner blocks on "go" until released and records every request.
type gateRunner struct {
	mu       sync.Mutex
	requests []string
	started  chan struct{}
	release  chan struct{}
	closed   atomic.Bool
}

func newGateRunner() *gateRunner {
	return &gateRunner{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *gateRunner) Run(ctx context.Context, request string) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, request)
	r.mu.Unlock()
	if request != "go" {
		return request + " ok\n", nil
	}
	r.started <- struct{}{}
	select {
	case <-r.release:
		return "bestmove 7g7f\n", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *gateRunner) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *gateRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

func (a *Async) pendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func waitPending(t *testing.T, a *Async, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for a.pendingCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("pending requests: got %d want %d", a.pendingCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAsyncLazyRunner(t *testing.T) {
	var created atomic.Int32
	a := NewAsync(func(context.Context) (Runner, error) {
		created.Add(1)
		return newGateRunner(), nil
	})
	defer a.Terminate()
	if created.Load() != 0 {
		t.Fatal("runner should not exist before the first request")
	}
	for _, req := range []string{"usi", "isready", "usinewgame"} {
		resp, err := a.Run(context.Background(), req)
		if err != nil {
			t.Fatalf("run %s: %v", req, err)
		}
		if resp != req+" ok\n" {
			t.Fatalf("unexpected response: got %q", resp)
		}
	}
	if created.Load() != 1 {
		t.Fatalf("runner created %d times, want 1", created.Load())
	}
}

func TestAsyncOrdered(t *testing.T) {
	r := newGateRunner()
	a := NewAsync(func(context.Context) (Runner, error) { return r, nil })
	defer a.Terminate()

	var wg sync.WaitGroup
	responses := make([]string, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		responses[0], _ = a.Run(context.Background(), "go")
	}()
	<-r.started
	for i, req := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(i int, req string) {
			defer wg.Done()
			responses[i], _ = a.Run(context.Background(), req)
		}(i+1, req)
		waitPending(t, a, i+2)
	}
	close(r.release)
	wg.Wait()

	if got := r.seen(); len(got) != 4 || got[0] != "go" || got[1] != "a" || got[2] != "b" || got[3] != "c" {
		t.Fatalf("requests out of order: %q", got)
	}
	if responses[0] != "bestmove 7g7f\n" || responses[3] != "c ok\n" {
		t.Fatalf("unexpected responses: %q", responses)
	}
}

func TestAsyncTerminate(t *testing.T) {
	made := make(chan *gateRunner, 4)
	a := NewAsync(func(context.Context) (Runner, error) {
		r := newGateRunner()
		made <- r
		return r, nil
	})

	results := make(chan string, 2)
	go func() {
		resp, _ := a.Run(context.Background(), "go")
		results <- resp
	}()
	first := <-made
	<-first.started
	go func() {
		resp, _ := a.Run(context.Background(), "isready")
		results <- resp
	}()
	waitPending(t, a, 2)

	a.Terminate()
	for i := 0; i < 2; i++ {
		if got := <-results; got != TerminatedResponse {
			t.Fatalf("pending request resolved to %q, want %q", got, TerminatedResponse)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for !first.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("runner was not closed after Terminate")
		}
		time.Sleep(time.Millisecond)
	}

	resp, err := a.Run(context.Background(), "usi")
	if err != nil || resp != "usi ok\n" {
		t.Fatalf("run after terminate: %q, %v", resp, err)
	}
	select {
	case <-made:
	default:
		t.Fatal("a fresh runner should be created after Terminate")
	}
	if got := first.seen(); len(got) != 1 {
		t.Fatalf("terminated runner should not see later requests: %q", got)
	}
	a.Terminate()
	a.Terminate()
}

func TestAsyncCancel(t *testing.T) {
	r := newGateRunner()
	a := NewAsync(func(context.Context) (Runner, error) { return r, nil })
	defer a.Terminate()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := a.Run(ctx, "go")
		errs <- err
	}()
	<-r.started
	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled request: got %v", err)
	}
	resp, err := a.Run(context.Background(), "isready")
	if err != nil || resp != "isready ok\n" {
		t.Fatalf("request after cancel: %q, %v", resp, err)
	}
}

func TestAsyncFactoryError(t *testing.T) {
	boom := errors.New("no engine")
	a := NewAsync(func(context.Context) (Runner, error) { return nil, boom })
	defer a.Terminate()
	if _, err := a.Run(context.Background(), "usi"); !errors.Is(err, boom) {
		t.Fatalf("factory error should surface, got %v", err)
	}
}
