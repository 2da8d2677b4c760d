package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"zshogi/pkg/book"
	"zshogi/pkg/record"
	"zshogi/pkg/shogi"
	"zshogi/pkg/usi"
)

type echoRunner struct {
	requests []string
}

func (r *echoRunner) Run(_ context.Context, request string) (string, error) {
	r.requests = append(r.requests, request)
	switch {
	case request == "usi":
		return "id name fake\nusiok\n", nil
	case request == "isready":
		return "readyok\n", nil
	case strings.HasPrefix(request, "go"):
		return "info depth 1 score cp 10\nbestmove 2g2f\n", nil
	}
	return "", nil
}

func newTestConsole(t *testing.T) (*console, *bytes.Buffer, *int) {
	t.Helper()
	color.NoColor = true
	starts := 0
	engine := usi.NewAsync(func(context.Context) (usi.Runner, error) {
		starts++
		return &echoRunner{}, nil
	})
	t.Cleanup(func() { engine.Close() })
	var out bytes.Buffer
	return newConsole(engine, &out, zerolog.Nop()), &out, &starts
}

func TestConsoleForwardsToEngine(t *testing.T) {
	c, out, starts := newTestConsole(t)
	in := strings.NewReader("usi\nisready\nusinewgame\n:quit\nusi\n")
	if err := c.serve(context.Background(), in); err != nil {
		t.Fatalf("serve: %v", err)
	}
	want := "> usi\nid name fake\nusiok\n> isready\nreadyok\n> usinewgame\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", out.String(), want)
	}
	if *starts != 1 {
		t.Fatalf("engine started %d times", *starts)
	}
}

func TestConsoleLocalPosition(t *testing.T) {
	c, out, _ := newTestConsole(t)
	ctx := context.Background()
	for _, line := range []string{":move 7g7f 3c3d 8h2b+", ":undo", ":undo all"} {
		if err := c.execute(ctx, line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"lnsgkgsnl/1r5+B1/pppppp1pp/6p2/9/2P6/PP1PPPPPP/7R1/LNSGKGSNL w B 4",
		"lnsgkgsnl/1r5b1/pppppp1pp/6p2/9/2P6/PP1PPPPPP/1B5R1/LNSGKGSNL b - 3",
		shogi.StartSFEN,
	}
	if len(lines) != len(want) {
		t.Fatalf("unexpected output: %q", out.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %s want %s", i, lines[i], want[i])
		}
	}
	if err := c.execute(ctx, ":undo"); err == nil {
		t.Fatal("undo at the root should fail")
	}
	if err := c.execute(ctx, ":move 5e5d"); err == nil {
		t.Fatal("moving from an empty square should fail")
	}
	if err := c.execute(ctx, ":nope"); err == nil {
		t.Fatal("unknown command should fail")
	}
}

func TestConsoleSFENAndBoard(t *testing.T) {
	c, out, _ := newTestConsole(t)
	ctx := context.Background()
	if err := c.execute(ctx, ":sfen 8k/9/9/9/9/9/9/9/K8 w G 5"); err != nil {
		t.Fatalf("sfen: %v", err)
	}
	out.Reset()
	if err := c.execute(ctx, ":board"); err != nil {
		t.Fatalf("board: %v", err)
	}
	board := out.String()
	for _, want := range []string{"w hand: -", "a   .  .  .  .  .  .  .  .  k", "i   K  .", "ply 5 hand: G1"} {
		if !strings.Contains(board, want) {
			t.Fatalf("board missing %q:\n%s", want, board)
		}
	}
	if err := c.execute(ctx, ":sfen 9/9 b"); err == nil {
		t.Fatal("bad sfen should fail")
	}
	if err := c.execute(ctx, ":sfen startpos"); err != nil || c.pos.SFEN() != shogi.StartSFEN {
		t.Fatalf("startpos: %v", err)
	}
}

func TestConsoleBestAndTerminate(t *testing.T) {
	c, out, starts := newTestConsole(t)
	ctx := context.Background()
	if err := c.execute(ctx, ":best byoyomi 100"); err != nil {
		t.Fatalf("best: %v", err)
	}
	if !strings.Contains(out.String(), "bestmove 2g2f\n") {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if err := c.execute(ctx, ":terminate"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := c.execute(ctx, "isready"); err != nil {
		t.Fatalf("isready: %v", err)
	}
	if *starts != 2 {
		t.Fatalf("engine should restart after terminate, started %d times", *starts)
	}
}

func TestConsoleSaveAndBook(t *testing.T) {
	c, _, _ := newTestConsole(t)
	ctx := context.Background()
	if err := c.execute(ctx, ":book"); err == nil {
		t.Fatal("book lookup without a book should fail")
	}
	b, err := book.OpenInMemory()
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	defer b.Close()
	m, _ := shogi.ParseMove("7g7f")
	if err := b.Add(c.pos, m); err != nil {
		t.Fatalf("add: %v", err)
	}
	c.book = b
	if err := c.execute(ctx, ":book"); err != nil {
		t.Fatalf("book: %v", err)
	}

	if err := c.execute(ctx, ":move 7g7f 3c3d"); err != nil {
		t.Fatalf("move: %v", err)
	}
	path := filepath.Join(t.TempDir(), "game.parquet")
	if err := c.execute(ctx, ":save "+path); err != nil {
		t.Fatalf("save: %v", err)
	}
	records, err := record.ReadParquet(path, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || strings.Join(records[0].Moves, " ") != "7g7f 3c3d" {
		t.Fatalf("unexpected saved records: %+v", records)
	}
}
