package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"zshogi/pkg/book"
	"zshogi/pkg/config"
	"zshogi/pkg/kif"
	"zshogi/pkg/shogi"
)

func main() {
	inputDir := flag.String("input", "test_kif", "input directory for KIF files")
	outputPath := flag.String("output", "book.db", "output book file")
	dbDir := flag.String("db", "", "badger directory to accumulate into (empty = in memory)")
	threshold := flag.Int("threshold", 3, "minimum occurrence count to include in book")
	maxPly := flag.Int("max-ply", 60, "maximum ply to process per game")
	maxFiles := flag.Int("max-files", 0, "maximum number of files to process (0=all)")
	workers := flag.Int("workers", 0, "number of parallel workers (0=NumCPU)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := config.Config{LogLevel: *logLevel}.Logger(os.Stderr)
	if *workers <= 0 {
		*workers = runtime.NumCPU()
	}
	if *threshold < 0 {
		fatal(fmt.Errorf("threshold must be >= 0"))
	}

	start := time.Now()
	totalFiles, err := kif.CountKIF(*inputDir)
	if err != nil {
		fatal(err)
	}
	if totalFiles == 0 {
		fatal(fmt.Errorf("no .kif files found in %s", *inputDir))
	}
	if *maxFiles > 0 && totalFiles > *maxFiles {
		totalFiles = *maxFiles
	}
	log.Info().Int("files", totalFiles).Int("workers", *workers).Int("max_ply", *maxPly).
		Int("threshold", *threshold).Msg("building book")

	var b *book.Book
	if *dbDir == "" {
		b, err = book.OpenInMemory()
	} else {
		b, err = book.Open(*dbDir)
	}
	if err != nil {
		fatal(err)
	}
	defer b.Close()

	fileErrs := collect(b, *inputDir, *maxFiles, *maxPly, *workers, totalFiles, log)
	size, err := b.Len()
	if err != nil {
		fatal(err)
	}
	log.Info().Int("positions", size).Int64("file_errors", fileErrs).Msg("counted positions")

	removed, err := b.Prune(uint32(*threshold))
	if err != nil {
		fatal(err)
	}
	log.Info().Int("removed", removed).Int("kept", size-removed).Msg("pruned book")
	if size-removed == 0 {
		fmt.Fprintln(os.Stderr, "no positions meet the threshold; nothing to write")
		return
	}

	f, err := os.Create(*outputPath)
	if err != nil {
		fatal(err)
	}
	if err := b.WriteYaneuraOuDB(f); err != nil {
		f.Close()
		fatal(err)
	}
	if err := f.Close(); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d positions) in %v\n",
		*outputPath, size-removed, time.Since(start).Round(time.Millisecond))
}

// gameSamples replays a game up to maxPly and returns every position with
// the move played from it. Replay stops at the first position that cannot
// be packed.
func gameSamples(path string, maxPly int) ([]book.Sample, error) {
	g, err := kif.Load(path)
	if err != nil {
		return nil, err
	}
	var samples []book.Sample
	err = g.Replay(maxPly, func(pos *shogi.Position, next shogi.Move) bool {
		s, err := book.NewSample(pos, next)
		if err != nil {
			return false
		}
		samples = append(samples, s)
		return true
	})
	return samples, err
}

// feedFiles streams paths from WalkKIF into ch, respecting maxFiles, and
// closes ch when done.
func feedFiles(inputDir string, maxFiles int, ch chan<- string) {
	sent := 0
	_ = kif.WalkKIF(inputDir, func(path string) error {
		if maxFiles > 0 && sent >= maxFiles {
			return filepath.SkipAll
		}
		ch <- path
		sent++
		return nil
	})
	close(ch)
}

func collect(b *book.Book, inputDir string, maxFiles, maxPly, workers, totalFiles int, log zerolog.Logger) int64 {
	var processed, errCount atomic.Int64
	ch := make(chan string, workers*4)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range ch {
				samples, err := gameSamples(path, maxPly)
				if err != nil {
					errCount.Add(1)
					log.Debug().Err(err).Str("file", path).Msg("replay stopped")
				}
				if err := b.AddSamples(samples); err != nil {
					errCount.Add(1)
					log.Error().Err(err).Str("file", path).Msg("book write failed")
				}
				if n := processed.Add(1); n%10000 == 0 {
					fmt.Fprintf(os.Stderr, "\r  %d/%d", n, totalFiles)
				}
			}
		}()
	}

	feedFiles(inputDir, maxFiles, ch)
	wg.Wait()
	fmt.Fprintf(os.Stderr, "\r  %d/%d\n", processed.Load(), totalFiles)
	return errCount.Load()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
