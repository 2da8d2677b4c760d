package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"zshogi/pkg/shogi"
)

var (
	blackPiece = color.New(color.FgBlue, color.Bold).SprintFunc()
	whitePiece = color.New(color.FgRed).SprintFunc()
	lastSquare = color.New(color.BgYellow).SprintFunc()
)

// renderBoard draws pos with file 9 on the left and rank a on top, the
// way SFEN lists squares. White pieces are lower case. The destination of
// the last move is highlighted.
func renderBoard(w io.Writer, pos *shogi.Position) {
	last := shogi.SquareNB
	if m := pos.LastMove(); m != shogi.NoMove {
		last = m.To()
	}
	fmt.Fprintf(w, "%s %s\n", pos.SideToMove(), handLine(pos, shogi.White))
	fmt.Fprintln(w, "   9  8  7  6  5  4  3  2  1")
	for r := 0; r < shogi.RankNB; r++ {
		var b strings.Builder
		fmt.Fprintf(&b, "%c ", 'a'+r)
		for f := shogi.FileNB - 1; f >= 0; f-- {
			sq := shogi.NewSquare(f, r)
			cell := cellText(pos.PieceAt(sq))
			if sq == last {
				cell = lastSquare(cell)
			}
			b.WriteString(cell)
		}
		fmt.Fprintln(w, b.String())
	}
	fmt.Fprintf(w, "ply %d %s\n", pos.Ply(), handLine(pos, shogi.Black))
}

func cellText(pc shogi.Piece) string {
	if pc == shogi.NoPiece {
		return "  ."
	}
	text := fmt.Sprintf("%3s", pc.String())
	if pc.Color() == shogi.Black {
		return blackPiece(text)
	}
	return whitePiece(text)
}

func handLine(pos *shogi.Position, c shogi.Color) string {
	var parts []string
	for _, raw := range shogi.HandOrder {
		if n := pos.HandCount(c, raw); n > 0 {
			parts = append(parts, fmt.Sprintf("%s%d", shogi.NewPiece(c, raw), n))
		}
	}
	if len(parts) == 0 {
		return "hand: -"
	}
	return "hand: " + strings.Join(parts, " ")
}
