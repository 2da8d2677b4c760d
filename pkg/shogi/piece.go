package shogi

// PieceType is the kind of a piece without its color. Promoted kinds share
// the low three bits with their base kind.
type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Lance
	Knight
	Silver
	Bishop
	Rook
	Gold
	King
	ProPawn
	ProLance
	ProKnight
	ProSilver
	Horse
	Dragon
)

const (
	promotedBit PieceType = 0b1000
	rawMask     PieceType = 0b0111
	typeMask    Piece     = 0b01111
	colorShift            = 4
)

// Raw strips the promotion bit. King maps to NoPieceType, which is never
// stored in a hand.
func (pt PieceType) Raw() PieceType {
	return pt & rawMask
}

func (pt PieceType) IsPromoted() bool {
	return pt&promotedBit != 0
}

// Promote and Demote must not be used on gold or king.
func (pt PieceType) Promote() PieceType {
	return pt | promotedBit
}

func (pt PieceType) Demote() PieceType {
	return pt &^ promotedBit
}

// IsDroppable reports whether pieces of this type can sit in a hand.
func (pt PieceType) IsDroppable() bool {
	return pt >= Pawn && pt <= Gold
}

// CanPromote reports whether the type has a promoted form.
func (pt PieceType) CanPromote() bool {
	return pt >= Pawn && pt <= Rook
}

// Piece packs a color and a piece type: color<<4 | type.
type Piece uint8

const NoPiece Piece = 0

func NewPiece(c Color, pt PieceType) Piece {
	return Piece(c)<<colorShift | Piece(pt)
}

func (pc Piece) Color() Color {
	return Color(pc >> colorShift & 1)
}

func (pc Piece) Type() PieceType {
	return PieceType(pc & typeMask)
}

// Raw is the type a captured piece takes in hand.
func (pc Piece) Raw() PieceType {
	return pc.Type().Raw()
}

func (pc Piece) IsPromoted() bool {
	return pc.Type().IsPromoted()
}

func (pc Piece) Promote() Piece {
	return pc | Piece(promotedBit)
}

func (pc Piece) Demote() Piece {
	return pc &^ Piece(promotedBit)
}

var pieceToUSI = [...]string{
	"", "P", "L", "N", "S", "B", "R", "G", "K", "+P", "+L", "+N", "+S", "+B", "+R", "",
	"", "p", "l", "n", "s", "b", "r", "g", "k", "+p", "+l", "+n", "+s", "+b", "+r",
}

var pieceFromUSI = func() map[string]Piece {
	m := make(map[string]Piece, len(pieceToUSI))
	for pc, usi := range pieceToUSI {
		if usi != "" {
			m[usi] = Piece(pc)
		}
	}
	return m
}()

// String returns the USI letter, e.g. "P", "+b". NoPiece renders as "".
func (pc Piece) String() string {
	if int(pc) >= len(pieceToUSI) {
		return ""
	}
	return pieceToUSI[pc]
}

// ParsePiece maps a USI piece token to a Piece. Unknown tokens, including
// "+G" and "+K", yield NoPiece.
func ParsePiece(s string) Piece {
	return pieceFromUSI[s]
}
