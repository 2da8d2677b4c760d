package usi

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeEngine answers the handful of commands a Session waits on.
func fakeEngine(t *testing.T) (*Session, func()) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go func() {
		defer outW.Close()
		defer inR.Close()
		sc := bufio.NewScanner(inR)
		for sc.Scan() {
			fields := strings.Fields(sc.Text())
			if len(fields) == 0 {
				continue
			}
			var reply string
			switch fields[0] {
			case "usi":
				reply = "id name fake\nid author test\n\nusiok\n"
			case "isready":
				reply = "readyok\n"
			case "go":
				reply = "info depth 1 score cp 31 pv 7g7f\nbestmove 7g7f ponder 3c3d\n"
			case "moves":
				reply = "7g7f 2g2f\n"
			case "quit":
				return
			}
			if _, err := io.WriteString(outW, reply); err != nil {
				return
			}
		}
	}()
	s := newSession(func(line string) error { return writeLine(inW, line) }, outR)
	return s, func() {
		_ = inW.Close()
		_ = outR.Close()
	}
}

func TestSessionRun(t *testing.T) {
	s, stop := fakeEngine(t)
	defer stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cases := []struct{ request, want string }{
		{"usi", "id name fake\nid author test\nusiok\n"},
		{"isready", "readyok\n"},
		{"usinewgame", ""},
		{"position startpos", ""},
		{"moves", "7g7f 2g2f\n"},
		{"go movetime 10", "info depth 1 score cp 31 pv 7g7f\nbestmove 7g7f ponder 3c3d\n"},
	}
	for _, tc := range cases {
		got, err := s.Run(ctx, tc.request)
		if err != nil {
			t.Fatalf("run %q: %v", tc.request, err)
		}
		if got != tc.want {
			t.Fatalf("unexpected response to %q: got %q want %q", tc.request, got, tc.want)
		}
	}
}

func TestSessionClosedStream(t *testing.T) {
	s, stop := fakeEngine(t)
	defer stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.Run(ctx, "quit"); err != nil {
		t.Fatalf("quit: %v", err)
	}
	_, err := s.Run(ctx, "isready")
	if err == nil {
		t.Fatal("run after the engine exited should fail")
	}
	if !errors.Is(err, ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionContextCancel(t *testing.T) {
	outR, _ := io.Pipe()
	s := newSession(func(string) error { return nil }, outR)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Run(ctx, "go infinite"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	_ = outR.Close()
}

// slowEngine reports a search line at once and its bestmove after delay,
// or as soon as it reads "stop". Every received command is recorded.
func slowEngine(t *testing.T, delay time.Duration) (*Session, func() []string) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	var mu sync.Mutex
	var received []string
	go func() {
		defer outW.Close()
		sc := bufio.NewScanner(inR)
		var finish func()
		for sc.Scan() {
			line := sc.Text()
			mu.Lock()
			received = append(received, line)
			mu.Unlock()
			switch strings.Fields(line)[0] {
			case "go":
				_, _ = io.WriteString(outW, "info depth 1 score cp 31 pv 7g7f\n")
				var once sync.Once
				finish = func() {
					once.Do(func() { _, _ = io.WriteString(outW, "bestmove 7g7f\n") })
				}
				time.AfterFunc(delay, finish)
			case "stop":
				if finish != nil {
					finish()
				}
			case "moves":
				_, _ = io.WriteString(outW, "7g7f 2g2f\n")
			case "isready":
				_, _ = io.WriteString(outW, "readyok\n")
			}
		}
	}()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})
	s := newSession(func(line string) error { return writeLine(inW, line) }, outR)
	return s, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), received...)
	}
}

func TestSessionDropsAbandonedSearch(t *testing.T) {
	s, received := slowEngine(t, time.Second)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Run(short, "go movetime 1000"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	got, err := s.Run(ctx, "moves")
	if err != nil {
		t.Fatalf("moves: %v", err)
	}
	if got != "7g7f 2g2f\n" {
		t.Fatalf("got %q want the moves line", got)
	}
	if _, err := ParseMoves(got); err != nil {
		t.Fatalf("parse moves: %v", err)
	}
	cmds := received()
	if len(cmds) != 3 || cmds[1] != "stop" {
		t.Fatalf("unexpected commands: %q", cmds)
	}

	got, err = s.Run(ctx, "go movetime 10")
	if err != nil {
		t.Fatalf("go: %v", err)
	}
	if want := "info depth 1 score cp 31 pv 7g7f\nbestmove 7g7f\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSessionDropsAbandonedSearchWithoutStop(t *testing.T) {
	// The engine ignores stop here; the drain waits for the late bestmove.
	s, _ := slowEngine(t, 50*time.Millisecond)
	s.send = func(send func(string) error) func(string) error {
		return func(line string) error {
			if line == "stop" {
				return nil
			}
			return send(line)
		}
	}(s.send)

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Run(short, "go movetime 100"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	got, err := s.Run(ctx, "isready")
	if err != nil || got != "readyok\n" {
		t.Fatalf("got %q, %v want readyok", got, err)
	}
}

func TestAsyncCancelKeepsOrder(t *testing.T) {
	s, _ := slowEngine(t, time.Second)
	a := NewAsync(func(context.Context) (Runner, error) { return s, nil })
	defer a.Terminate()

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Run(short, "go infinite"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	got, err := a.Run(ctx, "moves")
	if err != nil || got != "7g7f 2g2f\n" {
		t.Fatalf("got %q, %v want the moves line", got, err)
	}
}

func TestStartRelativePath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine")
	}
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "engine"), 0o755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\nwhile read line; do\n  case \"$line\" in\n    isready) echo readyok ;;\n    quit) exit 0 ;;\n  esac\ndone\n"
	if err := os.WriteFile(filepath.Join(dir, "engine", "fake.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := StartSession(ctx, filepath.Join("engine", "fake.sh"))
	if err != nil {
		t.Fatalf("start relative engine: %v", err)
	}
	defer s.Close()
	got, err := s.Run(ctx, "isready")
	if err != nil || got != "readyok\n" {
		t.Fatalf("got %q, %v want readyok", got, err)
	}
}

func TestTerminator(t *testing.T) {
	cases := []struct {
		request string
		want    EventType
		anyLine bool
		ok      bool
	}{
		{"usi", EventUSIOK, false, true},
		{"isready", EventReadyOK, false, true},
		{"go btime 0 wtime 0 byoyomi 1000", EventBestMove, false, true},
		{"moves", 0, true, true},
		{"usinewgame", 0, false, false},
		{"", 0, false, false},
	}
	for _, tc := range cases {
		want, anyLine, ok := terminator(tc.request)
		if want != tc.want || anyLine != tc.anyLine || ok != tc.ok {
			t.Fatalf("terminator(%q) = %v, %v, %v", tc.request, want, anyLine, ok)
		}
	}
}
