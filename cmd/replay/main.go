package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"zshogi/pkg/config"
	"zshogi/pkg/kif"
	"zshogi/pkg/record"
	"zshogi/pkg/usi"
)

func main() {
	startTime := time.Now()
	configPath := flag.String("config", "", "path to config.json (default: search upwards)")
	inputDir := flag.String("input", "test_kif", "input directory for KIF files")
	outputPath := flag.String("output", "output.parquet", "output parquet file")
	processNum := flag.Int("process-num", 4, "number of parallel workers")
	resume := flag.Bool("resume", false, "resume from existing output parquet")
	evaluate := flag.Bool("eval", true, "evaluate every position with the configured engine")
	flag.Parse()

	var cfg config.Config
	if *evaluate || *configPath != "" {
		var err error
		if cfg, err = config.Resolve(*configPath); err != nil {
			fatal(err)
		}
	}
	log := cfg.Logger(os.Stderr)

	enginePath := cfg.EnginePath()
	if *evaluate {
		if enginePath == "" {
			fatal(errors.New("engine path is required"))
		}
		if _, err := os.Stat(enginePath); err != nil {
			fatal(fmt.Errorf("engine binary not found at %s: %w", enginePath, err))
		}
	}
	moveTimeMs := cfg.Millis
	if moveTimeMs <= 0 {
		moveTimeMs = 1000
	}

	files, err := kif.CollectKIF(*inputDir)
	if err != nil {
		fatal(err)
	}
	if len(files) == 0 {
		fatal(fmt.Errorf("no .kif files found in %s", *inputDir))
	}
	workers := max(1, min(*processNum, len(files)))
	if dir := filepath.Dir(*outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fatal(err)
		}
	}

	outputTarget, resumeFromExisting := resumeTarget(*outputPath, *resume)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make(chan record.GameRecord, workers)
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- record.WriteParquet(outputTarget, results, int64(workers))
	}()

	processedIDs := make(map[string]struct{})
	if resumeFromExisting {
		err := record.ScanParquet(*outputPath, int64(workers), func(r record.GameRecord) error {
			processedIDs[r.GameID] = struct{}{}
			results <- r
			return nil
		})
		if err != nil {
			fatal(err)
		}
		log.Info().Int("records", len(processedIDs)).Msg("resumed")
	}

	var processed atomic.Int64
	done := make(chan struct{})
	go progress(done, &processed, len(files))

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan string)
	pending := pendingFiles(files, processedIDs)
	processed.Add(int64(len(files) - len(pending)))
	g.Go(func() error {
		defer close(jobs)
		for _, path := range pending {
			select {
			case <-gctx.Done():
				return nil
			case jobs <- path:
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		wlog := log.With().Int("worker", i).Logger()
		w := &worker{
			start:      engineStarter(enginePath, wlog),
			options:    cfg.Options,
			evaluate:   *evaluate,
			moveTimeMs: moveTimeMs,
			cache:      record.NewCache(),
			log:        wlog,
		}
		g.Go(func() error {
			defer w.close()
			for path := range jobs {
				fileStart := time.Now()
				rec, err := w.process(gctx, path)
				if gctx.Err() != nil {
					return nil
				}
				processed.Add(1)
				elapsed := time.Since(fileStart).Round(time.Millisecond)
				if errors.Is(err, errEngineStart) {
					return err
				}
				if err != nil {
					w.log.Warn().Err(err).Str("file", path).Dur("elapsed", elapsed).Msg("failed to process")
					continue
				}
				select {
				case results <- rec:
				case <-gctx.Done():
					return nil
				}
				w.log.Debug().Str("file", path).Dur("elapsed", elapsed).Msg("processed")
			}
			return nil
		})
	}

	runErr := g.Wait()
	close(done)
	close(results)
	if err := <-writeErr; err != nil {
		fatal(err)
	}
	if runErr != nil {
		fatal(runErr)
	}
	if resumeFromExisting {
		if err := os.Rename(outputTarget, *outputPath); err != nil {
			fatal(err)
		}
	}
	log.Info().Dur("elapsed", time.Since(startTime).Round(time.Second)).
		Int64("processed", processed.Load()).Bool("interrupted", ctx.Err() != nil).Msg("done")
}

var errEngineStart = errors.New("engine start failed")

// resumeTarget picks where records are written. Resuming over an existing
// output writes to a .tmp file that replaces it once the run completes.
func resumeTarget(outputPath string, resume bool) (string, bool) {
	if !resume {
		return outputPath, false
	}
	if _, err := os.Stat(outputPath); err != nil {
		return outputPath, false
	}
	return outputPath + ".tmp", true
}

// pendingFiles drops files whose game id is already in done.
func pendingFiles(files []string, done map[string]struct{}) []string {
	var out []string
	for _, path := range files {
		if _, ok := done[filepath.Base(path)]; ok {
			continue
		}
		out = append(out, path)
	}
	return out
}

// engineStarter launches a fresh engine process per call.
func engineStarter(enginePath string, log zerolog.Logger) func(context.Context) (usi.Runner, error) {
	return func(ctx context.Context) (usi.Runner, error) {
		session, err := usi.StartSession(ctx, enginePath)
		if err != nil {
			return nil, err
		}
		session.SetLogger(log)
		return session, nil
	}
}

// worker owns one engine and evaluation cache.
type worker struct {
	start      func(context.Context) (usi.Runner, error)
	options    map[string]string
	evaluate   bool
	moveTimeMs int
	cache      *record.Cache
	log        zerolog.Logger

	runner usi.Runner
	client *usi.Client
}

func (w *worker) process(ctx context.Context, path string) (record.GameRecord, error) {
	g, err := kif.Load(path)
	if err != nil {
		return record.GameRecord{}, err
	}
	rec, err := record.FromGame(path, g)
	if err != nil || !w.evaluate {
		return rec, err
	}
	if err := w.ensure(ctx); err != nil {
		return record.GameRecord{}, err
	}
	err = record.Evaluate(ctx, &rec, w.client, w.moveTimeMs, w.cache)
	if err != nil && isEngineFailure(err) && ctx.Err() == nil {
		// One retry on a fresh engine.
		w.log.Warn().Err(err).Msg("restarting engine")
		w.close()
		if err := w.ensure(ctx); err != nil {
			return record.GameRecord{}, err
		}
		err = record.Evaluate(ctx, &rec, w.client, w.moveTimeMs, w.cache)
	}
	return rec, err
}

func (w *worker) ensure(ctx context.Context) error {
	if w.client != nil {
		return nil
	}
	runner, err := w.start(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errEngineStart, err)
	}
	client := usi.NewClient(runner)
	if _, err := client.Handshake(ctx, w.options); err != nil {
		closeRunner(runner)
		return fmt.Errorf("%w: %v", errEngineStart, err)
	}
	w.runner, w.client = runner, client
	return nil
}

func (w *worker) close() {
	if w.runner != nil {
		closeRunner(w.runner)
	}
	w.runner, w.client = nil, nil
}

func closeRunner(r usi.Runner) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

func isEngineFailure(err error) bool {
	return errors.Is(err, usi.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE)
}

func progress(done <-chan struct{}, processed *atomic.Int64, total int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			fmt.Fprintf(os.Stderr, "\rprogress: %d/%d\n", processed.Load(), total)
			return
		case <-ticker.C:
			count := processed.Load()
			fmt.Fprintf(os.Stderr, "\rprogress: %d/%d (%d%%)", count, total, percent(count, total))
		}
	}
}

func percent(count int64, total int) int {
	if total <= 0 {
		return 0
	}
	return int(count * 100 / int64(total))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
