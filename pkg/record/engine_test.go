package record_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"zshogi/pkg/config"
	"zshogi/pkg/kif"
	"zshogi/pkg/record"
	"zshogi/pkg/usi"
)

// TestEvaluateTestdataWithEngine runs the configured engine over every
// testdata game. It is skipped when no engine is available.
func TestEvaluateTestdataWithEngine(t *testing.T) {
	cfgPath, _, err := config.FindConfigPath()
	if err != nil {
		t.Skipf("no config: %v", err)
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config.json: %v", err)
	}
	enginePath := cfg.EnginePath()
	if enginePath == "" {
		t.Fatal("config.json is missing engine path")
	}
	if _, err := os.Stat(enginePath); err != nil {
		t.Skipf("engine binary not found at %s: %v", enginePath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	session, err := usi.StartSession(ctx, enginePath)
	if err != nil {
		t.Fatalf("failed to start engine session: %v", err)
	}
	defer session.Close()

	stderrBuf := &bytes.Buffer{}
	stderrDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(stderrBuf, session.Stderr())
		close(stderrDone)
	}()

	client := usi.NewClient(session)
	if _, err := client.Handshake(ctx, cfg.Options); err != nil {
		if shouldSkipForMissingLibs(stderrBuf, stderrDone) {
			t.Skipf("engine cannot start due to missing runtime libraries: %s", strings.TrimSpace(stderrBuf.String()))
		}
		t.Fatalf("usi handshake failed: %v", err)
	}

	files, err := kif.CollectKIF(kifPath(""))
	if err != nil {
		t.Fatalf("failed to collect kifs: %v", err)
	}
	cache := record.NewCache()
	for _, path := range files {
		g, err := kif.Load(path)
		if err != nil {
			t.Fatalf("failed to load %s: %v", path, err)
		}
		rec, err := record.FromGame(path, g)
		if err != nil {
			continue
		}
		if err := record.Evaluate(ctx, &rec, client, 10, cache); err != nil {
			t.Fatalf("failed to evaluate %s: %v", path, err)
		}
		if len(rec.MoveEvals) != len(rec.Moves) {
			t.Fatalf("%s: %d evals for %d moves", path, len(rec.MoveEvals), len(rec.Moves))
		}
	}
}

func shouldSkipForMissingLibs(stderrBuf *bytes.Buffer, stderrDone <-chan struct{}) bool {
	select {
	case <-stderrDone:
	case <-time.After(500 * time.Millisecond):
	}
	msg := stderrBuf.String()
	return strings.Contains(msg, "GLIBC") || strings.Contains(msg, "GLIBCXX")
}
