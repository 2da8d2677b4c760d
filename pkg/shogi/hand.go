package shogi

// Hand packs the counts of the seven droppable kinds held by one player.
// Pawns get eight bits, everything else four.
type Hand uint32

const HandEmpty Hand = 0

const (
	handPawnShift   = 0
	handLanceShift  = 8
	handKnightShift = 12
	handSilverShift = 16
	handBishopShift = 20
	handRookShift   = 24
	handGoldShift   = 28

	handPawnBits  = 8
	handPieceBits = 4
)

var handShift = [...]uint{
	Pawn:   handPawnShift,
	Lance:  handLanceShift,
	Knight: handKnightShift,
	Silver: handSilverShift,
	Bishop: handBishopShift,
	Rook:   handRookShift,
	Gold:   handGoldShift,
}

// handMax is the largest count a field can hold.
var handMax = [...]int{
	Pawn:   1<<handPawnBits - 1,
	Lance:  1<<handPieceBits - 1,
	Knight: 1<<handPieceBits - 1,
	Silver: 1<<handPieceBits - 1,
	Bishop: 1<<handPieceBits - 1,
	Rook:   1<<handPieceBits - 1,
	Gold:   1<<handPieceBits - 1,
}

// HandOrder is the SFEN emission order of hand pieces.
var HandOrder = [...]PieceType{Rook, Bishop, Gold, Silver, Knight, Lance, Pawn}

func handOne(raw PieceType) Hand {
	return 1 << handShift[raw]
}

func handMask(raw PieceType) Hand {
	return Hand(handMax[raw]) << handShift[raw]
}

// Count returns how many pieces of the raw type are held.
func (h Hand) Count(raw PieceType) int {
	if !raw.IsDroppable() {
		return 0
	}
	return int((h & handMask(raw)) >> handShift[raw])
}

// Add returns h with the count of raw changed by d. No bounds checking is
// done: the caller keeps every field inside its slot.
func (h Hand) Add(raw PieceType, d int) Hand {
	if !raw.IsDroppable() {
		return h
	}
	return Hand(int64(h) + int64(handOne(raw))*int64(d))
}

func (h Hand) IsEmpty() bool {
	return h == HandEmpty
}

// MaxHandCount is the capacity of the hand field for raw.
func MaxHandCount(raw PieceType) int {
	if !raw.IsDroppable() {
		return 0
	}
	return handMax[raw]
}
