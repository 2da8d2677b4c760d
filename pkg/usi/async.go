package usi

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// TerminatedResponse resolves requests still pending when Terminate runs.
const TerminatedResponse = "terminated\n"

// RunnerFactory creates the Runner behind an Async.
type RunnerFactory func(ctx context.Context) (Runner, error)

// Async hands requests to a single worker goroutine that owns the Runner.
// The Runner is created on the first request and requests are answered in
// the order they were issued. Async is safe for concurrent use.
type Async struct {
	newRunner RunnerFactory
	log       zerolog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*asyncJob
	worker  *asyncWorker
}

type asyncJob struct {
	id      uint64
	ctx     context.Context
	request string
	done    chan asyncResult
}

type asyncResult struct {
	response string
	err      error
}

type asyncWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	queue  []*asyncJob
	wake   chan struct{}
}

func NewAsync(newRunner RunnerFactory) *Async {
	return &Async{
		newRunner: newRunner,
		log:       zerolog.Nop(),
		nextID:    1,
		pending:   map[uint64]*asyncJob{},
	}
}

func (a *Async) SetLogger(log zerolog.Logger) {
	a.log = log
}

// Run queues request and waits for its response. Cancelling ctx abandons
// this request only.
func (a *Async) Run(ctx context.Context, request string) (string, error) {
	a.mu.Lock()
	if a.worker == nil {
		wctx, cancel := context.WithCancel(context.Background())
		a.worker = &asyncWorker{ctx: wctx, cancel: cancel, wake: make(chan struct{}, 1)}
		go a.loop(a.worker)
	}
	j := &asyncJob{id: a.nextID, ctx: ctx, request: request, done: make(chan asyncResult, 1)}
	a.nextID++
	a.pending[j.id] = j
	w := a.worker
	w.queue = append(w.queue, j)
	a.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-j.done:
		return r.response, r.err
	case <-ctx.Done():
		a.mu.Lock()
		delete(a.pending, j.id)
		a.mu.Unlock()
		return "", ctx.Err()
	}
}

// Terminate stops the worker and its Runner. Every pending request
// resolves to TerminatedResponse; the next Run starts a fresh Runner.
func (a *Async) Terminate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker == nil {
		return
	}
	a.worker.cancel()
	a.worker = nil
	for id, j := range a.pending {
		j.done <- asyncResult{response: TerminatedResponse}
		delete(a.pending, id)
	}
	a.log.Debug().Msg("terminated")
}

// Close is Terminate for use as an io.Closer.
func (a *Async) Close() error {
	a.Terminate()
	return nil
}

func (a *Async) resolve(id uint64, r asyncResult) {
	a.mu.Lock()
	j, ok := a.pending[id]
	delete(a.pending, id)
	a.mu.Unlock()
	if ok {
		j.done <- r
	}
}

func (a *Async) next(w *asyncWorker) *asyncJob {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	j := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return j
}

func (a *Async) loop(w *asyncWorker) {
	var runner Runner
	defer func() {
		if c, ok := runner.(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.log.Warn().Err(err).Msg("close runner")
			}
		}
	}()
	for {
		if w.ctx.Err() != nil {
			return
		}
		j := a.next(w)
		if j == nil {
			select {
			case <-w.wake:
			case <-w.ctx.Done():
				return
			}
			continue
		}
		if err := j.ctx.Err(); err != nil {
			a.resolve(j.id, asyncResult{err: err})
			continue
		}
		if runner == nil {
			r, err := a.newRunner(w.ctx)
			if err != nil {
				a.resolve(j.id, asyncResult{err: err})
				continue
			}
			runner = r
		}
		ctx, cancel := context.WithCancel(j.ctx)
		stop := context.AfterFunc(w.ctx, cancel)
		a.log.Debug().Uint64("id", j.id).Str("request", j.request).Msg("run")
		response, err := runner.Run(ctx, j.request)
		stop()
		cancel()
		a.resolve(j.id, asyncResult{response: response, err: err})
	}
}
