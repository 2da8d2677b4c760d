// Package shogi holds the position model: packed pieces, hands and moves,
// the SFEN codec and a reversible move history.
package shogi

// Color is the side a piece belongs to.
type Color uint8

const (
	Black Color = iota
	White
	ColorNB
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	return c ^ 1
}

func (c Color) String() string {
	if c == White {
		return "w"
	}
	return "b"
}

const (
	FileNB = 9
	RankNB = 9
)

// Square indexes the board as file*9 + rank. File 0 is the USI file "1",
// rank 0 is the USI rank "a".
type Square uint8

// SquareNB is one past the last square and doubles as "no square".
const SquareNB Square = FileNB * RankNB

const (
	fileChars = "123456789"
	rankChars = "abcdefghi"
)

func NewSquare(file, rank int) Square {
	return Square(RankNB*file + rank)
}

func (sq Square) File() int {
	return int(sq) / RankNB
}

func (sq Square) Rank() int {
	return int(sq) % RankNB
}

func (sq Square) IsValid() bool {
	return sq < SquareNB
}

// String returns the USI form, e.g. "7g". Off-board squares render as "".
func (sq Square) String() string {
	if !sq.IsValid() {
		return ""
	}
	return string([]byte{fileChars[sq.File()], rankChars[sq.Rank()]})
}

// ParseSquare reads a two-character USI square such as "5e".
func ParseSquare(s string) (Square, bool) {
	if len(s) != 2 {
		return SquareNB, false
	}
	file, ok := fileFromByte(s[0])
	if !ok {
		return SquareNB, false
	}
	rank, ok := rankFromByte(s[1])
	if !ok {
		return SquareNB, false
	}
	return NewSquare(file, rank), true
}

func fileFromByte(b byte) (int, bool) {
	if b < '1' || b > '9' {
		return 0, false
	}
	return int(b - '1'), true
}

func rankFromByte(b byte) (int, bool) {
	if b < 'a' || b > 'i' {
		return 0, false
	}
	return int(b - 'a'), true
}
