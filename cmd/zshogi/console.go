package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"zshogi/pkg/book"
	"zshogi/pkg/kif"
	"zshogi/pkg/record"
	"zshogi/pkg/shogi"
	"zshogi/pkg/usi"
)

var errQuit = errors.New("quit")

// console forwards plain lines to the engine and handles ":" commands on a
// local position.
type console struct {
	engine *usi.Async
	client *usi.Client
	pos    *shogi.Position
	book   *book.Book
	out    io.Writer
	log    zerolog.Logger
}

func newConsole(engine *usi.Async, out io.Writer, log zerolog.Logger) *console {
	return &console{
		engine: engine,
		client: usi.NewClient(engine),
		pos:    shogi.NewStartPosition(),
		out:    out,
		log:    log,
	}
}

func (c *console) serve(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := c.execute(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (c *console) execute(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, ":") {
		fmt.Fprintf(c.out, "> %s\n", line)
		resp, err := c.engine.Run(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprint(c.out, resp)
		return nil
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return errors.New("empty command")
	}
	args := fields[1:]
	switch fields[0] {
	case "move":
		return c.move(args)
	case "undo":
		return c.undo(args)
	case "sfen":
		return c.sfen(strings.TrimSpace(strings.TrimPrefix(line[1:], fields[0])))
	case "board":
		renderBoard(c.out, c.pos)
	case "best":
		b, err := c.client.BestMove(ctx, c.pos, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "bestmove %s\n", b)
	case "save":
		if len(args) != 1 {
			return errors.New("usage: :save <file.parquet>")
		}
		rec := record.FromPosition(c.pos, kif.Players{})
		if err := record.WriteRecords(args[0], []record.GameRecord{rec}); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "saved %s (%d moves)\n", rec.GameID, rec.MoveCount)
	case "book":
		return c.lookup()
	case "terminate":
		c.engine.Terminate()
		fmt.Fprintln(c.out, "engine terminated")
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command :%s", fields[0])
	}
	return nil
}

func (c *console) move(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: :move <usi move>...")
	}
	for _, text := range args {
		m, err := shogi.ParseMove(text)
		if err != nil {
			return err
		}
		if err := kif.Apply(c.pos, m); err != nil {
			return fmt.Errorf("%s: %w", text, err)
		}
	}
	fmt.Fprintln(c.out, c.pos.SFEN())
	return nil
}

func (c *console) undo(args []string) error {
	n := 1
	if len(args) > 0 {
		if args[0] == "all" {
			n = -1
		} else {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("invalid undo count %q", args[0])
			}
			n = v
		}
	}
	undone := 0
	for (n < 0 || undone < n) && c.pos.UndoMove() {
		undone++
	}
	if undone == 0 {
		return errors.New("nothing to undo")
	}
	fmt.Fprintln(c.out, c.pos.SFEN())
	return nil
}

func (c *console) sfen(text string) error {
	switch text {
	case "":
		fmt.Fprintln(c.out, c.pos.SFEN())
		return nil
	case "startpos":
		text = shogi.StartSFEN
	}
	pos, err := shogi.FromSFEN(text)
	if err != nil {
		return err
	}
	c.pos = pos
	fmt.Fprintln(c.out, c.pos.SFEN())
	return nil
}

func (c *console) lookup() error {
	if c.book == nil {
		return errors.New("no book opened (use -book)")
	}
	e, err := c.book.Lookup(c.pos)
	if err != nil {
		return err
	}
	for _, m := range e.Ranked() {
		fmt.Fprintf(c.out, "%s %d\n", m.Move, m.Count)
	}
	return nil
}
