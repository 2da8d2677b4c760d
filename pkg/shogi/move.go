package shogi

import (
	"fmt"
	"strings"
)

// Move packs a move into 16 bits:
// bits 0-6:  destination square (0-81)
// bits 7-13: origin square, or the dropped raw piece type for drops
// bit 14:    drop flag
// bit 15:    promotion flag
type Move uint16

const (
	moveToMask    Move = 0x7f
	moveFromShift      = 7
	moveFromMask  Move = 0x7f << moveFromShift

	MoveDropped  Move = 1 << 14
	MovePromoted Move = 1 << 15
)

// NoMove is the zero value. NewMove(1a, 1a) shares it and is not a move.
const NoMove Move = 0

func NewMove(from, to Square) Move {
	return Move(to) | Move(from)<<moveFromShift
}

func NewPromotion(from, to Square) Move {
	return NewMove(from, to) | MovePromoted
}

func NewDrop(raw PieceType, to Square) Move {
	return Move(to) | Move(raw)<<moveFromShift | MoveDropped
}

// NewPartialMove records a selected origin whose destination is not yet
// known. Board UIs build moves in two clicks.
func NewPartialMove(from Square) Move {
	return NewMove(from, SquareNB)
}

func (m Move) To() Square {
	return Square(m & moveToMask)
}

// From is only meaningful when IsDrop is false.
func (m Move) From() Square {
	return Square((m & moveFromMask) >> moveFromShift)
}

// DropPiece is only meaningful when IsDrop is true.
func (m Move) DropPiece() PieceType {
	return PieceType((m & moveFromMask) >> moveFromShift)
}

func (m Move) IsDrop() bool {
	return m&MoveDropped != 0
}

func (m Move) IsPromotion() bool {
	return m&MovePromoted != 0
}

func (m Move) IsPartial() bool {
	return m.To() == SquareNB && m&(MoveDropped|MovePromoted) == 0
}

// WithTo completes a partial move.
func (m Move) WithTo(to Square) Move {
	return m&^moveToMask | Move(to)
}

// String returns USI notation: "7g7f", "8h2b+" or "B*3c".
func (m Move) String() string {
	switch {
	case m == NoMove:
		return ""
	case m.IsDrop():
		return NewPiece(Black, m.DropPiece()).String() + "*" + m.To().String()
	case m.IsPromotion():
		return m.From().String() + m.To().String() + "+"
	default:
		return m.From().String() + m.To().String()
	}
}

// ParseMove reads a move in USI notation. It accepts
// (PieceLetter "*" | Square) Square "+"? and nothing else.
func ParseMove(usi string) (Move, error) {
	malformed := func() (Move, error) {
		return NoMove, fmt.Errorf("%w: move %q", ErrMalformedInput, usi)
	}
	if len(usi) < 4 || len(usi) > 5 {
		return malformed()
	}
	to, ok := ParseSquare(usi[2:4])
	if !ok {
		return malformed()
	}
	if usi[1] == '*' {
		if len(usi) != 4 {
			return malformed()
		}
		raw := ParsePiece(usi[:1])
		if raw == NoPiece || raw.Color() != Black || !raw.Type().IsDroppable() {
			return malformed()
		}
		return NewDrop(raw.Type(), to), nil
	}
	from, ok := ParseSquare(usi[:2])
	if !ok {
		return malformed()
	}
	if len(usi) == 5 {
		if usi[4] != '+' {
			return malformed()
		}
		return NewPromotion(from, to), nil
	}
	return NewMove(from, to), nil
}

// FormatMoves joins moves with single spaces.
func FormatMoves(moves []Move) string {
	parts := make([]string, len(moves))
	for i, m := range moves {
		parts[i] = m.String()
	}
	return strings.Join(parts, " ")
}
