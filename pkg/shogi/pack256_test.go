package shogi_test

import (
	"testing"

	"zshogi/pkg/shogi"
)

func TestPack256RoundTrip(t *testing.T) {
	sfens := []string{shogi.StartSFEN, shogi.MatsuriSFEN}
	for _, step := range scenario {
		sfens = append(sfens, step.sfen)
	}
	for _, sfen := range sfens {
		pos := mustSFEN(t, sfen)
		packed, err := shogi.Pack256(pos)
		if err != nil {
			t.Fatalf("Pack256(%s): %v", sfen, err)
		}
		back, err := shogi.Unpack256(packed)
		if err != nil {
			t.Fatalf("Unpack256(%s): %v", sfen, err)
		}
		back.SetPly(pos.Ply())
		if got := back.SFEN(); got != sfen {
			t.Fatalf("unexpected sfen: got %s want %s", got, sfen)
		}
		fromBytes, err := shogi.Packed256FromBytes(packed.Bytes())
		if err != nil || fromBytes != packed {
			t.Fatalf("bytes round trip of %s: %v", sfen, err)
		}
	}
}

func TestPack256Distinguishes(t *testing.T) {
	a, err := shogi.Pack256(mustSFEN(t, scenario[2].sfen))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	b, err := shogi.Pack256(mustSFEN(t, "lnsgkgsnl/1r5+B1/pppppp1pp/6p2/9/2P6/PP1PPPPPP/7R1/LNSGKGSNL b B 4"))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if a == b {
		t.Fatal("side to move must change the packed value")
	}
}

func TestPack256Rejects(t *testing.T) {
	for _, sfen := range []string{
		"9/9/9/9/9/9/9/9/9 b - 1",
		"4k4/9/9/9/9/9/9/9/4K4 b - 1",
		"4k4/9/9/9/9/9/9/9/3KK4 b - 1",
	} {
		if _, err := shogi.Pack256(mustSFEN(t, sfen)); err == nil {
			t.Fatalf("Pack256(%s) should fail", sfen)
		}
	}
	if _, err := shogi.Packed256FromBytes(make([]byte, 31)); err == nil {
		t.Fatal("short byte slice should be rejected")
	}
}
