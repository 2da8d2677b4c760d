package main

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"zshogi/pkg/book"
	"zshogi/pkg/shogi"
)

var testdataDir = filepath.Join("..", "..", "pkg", "kif", "testdata")

func TestGameSamples(t *testing.T) {
	samples, err := gameSamples(filepath.Join(testdataDir, "basic_aigakari.kif"), 4)
	if err != nil {
		t.Fatalf("gameSamples: %v", err)
	}
	want := []string{"2g2f", "8c8d", "2f2e", "8d8e"}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples want %d", len(samples), len(want))
	}
	for i, s := range samples {
		if s.Move.String() != want[i] {
			t.Fatalf("sample %d: got %s want %s", i, s.Move, want[i])
		}
	}
	if samples[0].SFEN != shogi.StartSFEN {
		t.Fatalf("first sample: got %s want %s", samples[0].SFEN, shogi.StartSFEN)
	}
}

func TestCollect(t *testing.T) {
	b, err := book.OpenInMemory()
	if err != nil {
		t.Fatalf("open book: %v", err)
	}
	defer b.Close()

	collect(b, testdataDir, 0, 2, 2, 3, zerolog.Nop())

	e, err := b.Lookup(shogi.NewStartPosition())
	if err != nil {
		t.Fatalf("lookup start: %v", err)
	}
	if e.Moves["2g2f"] != 1 || e.Total() != 1 {
		t.Fatalf("unexpected start entry: %+v", e)
	}
}
