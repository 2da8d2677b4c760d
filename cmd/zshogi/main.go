// Command zshogi is an interactive console for a USI engine. Plain lines
// go to the engine; lines starting with ":" work on a local position.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"zshogi/pkg/book"
	"zshogi/pkg/config"
	"zshogi/pkg/usi"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (default: search upwards)")
	enginePath := flag.String("engine", "", "engine binary (overrides config)")
	bookDir := flag.String("book", "", "badger book directory for :book")
	noColor := flag.Bool("no-color", false, "disable colours in :board")
	flag.Parse()

	cfg, err := config.Resolve(*configPath)
	if err != nil && *enginePath == "" {
		fatal(err)
	}
	log := cfg.Logger(os.Stderr)
	path := cfg.EnginePath()
	if *enginePath != "" {
		path = *enginePath
	}
	if path == "" {
		fatal(fmt.Errorf("engine path is required"))
	}
	if *noColor {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := usi.NewAsync(func(ctx context.Context) (usi.Runner, error) {
		log.Info().Str("engine", path).Msg("starting engine")
		s, err := usi.StartSession(ctx, path)
		if err != nil {
			return nil, err
		}
		s.SetLogger(log)
		return s, nil
	})
	engine.SetLogger(log)
	defer engine.Close()

	c := newConsole(engine, os.Stdout, log)
	if *bookDir != "" {
		b, err := book.Open(*bookDir)
		if err != nil {
			fatal(err)
		}
		defer b.Close()
		c.book = b
	}
	if err := c.serve(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
