package usi

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Session manages a USI engine session and event stream. It implements
// Runner; calls to Run are serialised.
type Session struct {
	engine *Engine
	send   func(string) error
	events chan Event
	errCh  chan error
	log    zerolog.Logger

	mu sync.Mutex
	// unfinished is the response a cancelled Run stopped reading. Its
	// remaining lines are discarded before the next request is sent.
	unfinished *pendingResponse
}

type pendingResponse struct {
	request string
	want    EventType
	anyLine bool
}

// StartSession launches a USI engine and starts a reader goroutine.
func StartSession(ctx context.Context, path string, args ...string) (*Session, error) {
	engine, err := Start(ctx, path, args...)
	if err != nil {
		return nil, err
	}
	s := newSession(engine.Send, engine.stdout)
	s.engine = engine
	return s, nil
}

func newSession(send func(string) error, stdout io.Reader) *Session {
	reader := NewReader(stdout)
	events := make(chan Event, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			event, err := reader.Next()
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			events <- event
		}
	}()
	return &Session{send: send, events: events, errCh: errCh, log: zerolog.Nop()}
}

// SetLogger traces engine traffic at debug level.
func (s *Session) SetLogger(log zerolog.Logger) {
	s.log = log
}

// Close terminates the engine process.
func (s *Session) Close() error {
	if s == nil || s.engine == nil {
		return nil
	}
	return s.engine.Close()
}

// Stderr returns the engine's stderr reader for diagnostics.
func (s *Session) Stderr() io.Reader {
	if s == nil || s.engine == nil {
		return nil
	}
	return s.engine.Stderr()
}

// terminator is the event that ends the response to a command. ok is false
// for commands the engine does not answer.
func terminator(request string) (want EventType, anyLine bool, ok bool) {
	fields := strings.Fields(request)
	if len(fields) == 0 {
		return 0, false, false
	}
	switch fields[0] {
	case "usi":
		return EventUSIOK, false, true
	case "isready":
		return EventReadyOK, false, true
	case "go":
		return EventBestMove, false, true
	case "moves":
		return 0, true, true
	}
	return 0, false, false
}

// Run writes request and collects the engine's lines up to the command's
// terminator: usiok, readyok, bestmove, or the single line answering
// "moves". Other commands return "" as soon as they are written.
//
// If ctx ends before the terminator arrives, the rest of that response is
// read and dropped at the start of the next Run. A cancelled search is
// sent "stop" so the engine answers with its bestmove.
func (s *Session) Run(ctx context.Context, request string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.drain(ctx); err != nil {
		return "", err
	}

	request = strings.TrimSpace(request)
	s.log.Debug().Str("dir", "send").Msg(request)
	if err := s.send(request); err != nil {
		return "", err
	}
	want, anyLine, ok := terminator(request)
	if !ok {
		return "", nil
	}
	var b strings.Builder
	for {
		event, err := s.nextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.abandon(&pendingResponse{request: request, want: want, anyLine: anyLine})
			}
			return b.String(), err
		}
		s.log.Debug().Str("dir", "recv").Msg(event.Raw)
		b.WriteString(event.Raw)
		b.WriteByte('\n')
		if anyLine || event.Type == want {
			return b.String(), nil
		}
	}
}

func (s *Session) abandon(p *pendingResponse) {
	s.unfinished = p
	if p.want != EventBestMove {
		return
	}
	s.log.Debug().Str("dir", "send").Msg("stop")
	if err := s.send("stop"); err != nil {
		s.log.Warn().Err(err).Msg("stop abandoned search")
	}
}

// drain discards what is left of an abandoned response. It keeps the
// response pending if ctx ends first.
func (s *Session) drain(ctx context.Context) error {
	p := s.unfinished
	if p == nil {
		return nil
	}
	for {
		event, err := s.nextEvent(ctx)
		if err != nil {
			return err
		}
		s.log.Debug().Str("dir", "drop").Str("request", p.request).Msg(event.Raw)
		if p.anyLine || event.Type == p.want {
			s.unfinished = nil
			return nil
		}
	}
}

func (s *Session) nextEvent(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case event, ok := <-s.events:
		if ok {
			return event, nil
		}
		select {
		case err := <-s.errCh:
			if err != nil && !errors.Is(err, io.EOF) {
				return Event{}, err
			}
		default:
		}
		return Event{}, ErrClosed
	}
}
