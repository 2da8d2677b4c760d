package shogi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packed256 is a position squeezed into 256 bits with a fixed Huffman code:
// side to move, both king squares, then every other square, then the hands.
// Only positions holding the standard 40 pieces fit exactly. The ply and
// the history are not part of it.
type Packed256 struct {
	Words [4]uint64
}

var errBitstream = errors.New("packed position bitstream exhausted")

type huffCode struct {
	raw    PieceType
	bits   uint64
	bitLen int
}

// boardCodes has NoPieceType as the empty square.
var boardCodes = []huffCode{
	{NoPieceType, 0b0, 1},
	{Pawn, 0b01, 2},
	{Lance, 0b0011, 4},
	{Knight, 0b1011, 4},
	{Silver, 0b0111, 4},
	{Gold, 0b01111, 5},
	{Bishop, 0b011111, 6},
	{Rook, 0b111111, 6},
}

var handCodes = []huffCode{
	{Pawn, 0b0, 1},
	{Lance, 0b001, 3},
	{Knight, 0b101, 3},
	{Silver, 0b011, 3},
	{Gold, 0b0111, 4},
	{Bishop, 0b01111, 5},
	{Rook, 0b11111, 5},
}

// packHandOrder is the order hand pieces are written in.
var packHandOrder = [...]PieceType{Pawn, Lance, Knight, Silver, Gold, Bishop, Rook}

type bitWriter256 struct {
	words [4]uint64
	pos   int
}

func (w *bitWriter256) writeBits(value uint64, n int) error {
	for i := 0; i < n; i++ {
		if w.pos >= 256 {
			return fmt.Errorf("bitstream overflow")
		}
		if (value>>i)&1 != 0 {
			w.words[w.pos/64] |= 1 << uint(w.pos%64)
		}
		w.pos++
	}
	return nil
}

func (w *bitWriter256) writeBool(b bool) error {
	if b {
		return w.writeBits(1, 1)
	}
	return w.writeBits(0, 1)
}

func (w *bitWriter256) writeCode(codes []huffCode, raw PieceType) error {
	for _, c := range codes {
		if c.raw == raw {
			return w.writeBits(c.bits, c.bitLen)
		}
	}
	return fmt.Errorf("no code for piece type %d", raw)
}

type bitReader256 struct {
	words [4]uint64
	pos   int
}

func (r *bitReader256) readBits(n int) (uint64, error) {
	var v uint64
	for i := 0; i < n; i++ {
		if r.pos >= 256 {
			return 0, errBitstream
		}
		v |= (r.words[r.pos/64] >> uint(r.pos%64) & 1) << i
		r.pos++
	}
	return v, nil
}

func (r *bitReader256) readCode(codes []huffCode) (PieceType, error) {
	var v uint64
	for n := 1; n <= 6; n++ {
		bit, err := r.readBits(1)
		if err != nil {
			return NoPieceType, err
		}
		v |= bit << (n - 1)
		for _, c := range codes {
			if c.bitLen == n && c.bits == v {
				return c.raw, nil
			}
		}
	}
	return NoPieceType, fmt.Errorf("invalid code")
}

// Pack256 encodes p. It fails unless p has exactly one king per side and
// the remaining pieces fill the 256 bits exactly.
func Pack256(p *Position) (Packed256, error) {
	kings := [ColorNB]Square{SquareNB, SquareNB}
	for sq := Square(0); sq < SquareNB; sq++ {
		pc := p.board[sq]
		if pc.Type() != King {
			continue
		}
		if kings[pc.Color()] != SquareNB {
			return Packed256{}, fmt.Errorf("multiple %s kings", pc.Color())
		}
		kings[pc.Color()] = sq
	}
	if kings[Black] == SquareNB || kings[White] == SquareNB {
		return Packed256{}, fmt.Errorf("missing king")
	}

	w := &bitWriter256{}
	if err := w.writeBool(p.sideToMove == White); err != nil {
		return Packed256{}, err
	}
	for _, k := range kings {
		if err := w.writeBits(uint64(k), 7); err != nil {
			return Packed256{}, err
		}
	}
	for sq := Square(0); sq < SquareNB; sq++ {
		if sq == kings[Black] || sq == kings[White] {
			continue
		}
		pc := p.board[sq]
		if pc == NoPiece {
			if err := w.writeCode(boardCodes, NoPieceType); err != nil {
				return Packed256{}, err
			}
			continue
		}
		if err := w.writeCode(boardCodes, pc.Raw()); err != nil {
			return Packed256{}, err
		}
		if err := w.writeBool(pc.Color() == White); err != nil {
			return Packed256{}, err
		}
		if pc.Raw().CanPromote() {
			if err := w.writeBool(pc.IsPromoted()); err != nil {
				return Packed256{}, err
			}
		}
	}
	for _, c := range [...]Color{Black, White} {
		for _, raw := range packHandOrder {
			for i := p.hands[c].Count(raw); i > 0; i-- {
				if err := w.writeCode(handCodes, raw); err != nil {
					return Packed256{}, err
				}
				if err := w.writeBool(c == White); err != nil {
					return Packed256{}, err
				}
				if raw.CanPromote() {
					if err := w.writeBool(false); err != nil {
						return Packed256{}, err
					}
				}
			}
		}
	}
	if w.pos != 256 {
		return Packed256{}, fmt.Errorf("packed length is %d bits, expected 256", w.pos)
	}
	return Packed256{Words: w.words}, nil
}

// Unpack256 rebuilds a position at ply 1 with no history.
func Unpack256(packed Packed256) (*Position, error) {
	r := &bitReader256{words: packed.Words}
	side, err := r.readBits(1)
	if err != nil {
		return nil, err
	}
	bk, err := r.readBits(7)
	if err != nil {
		return nil, err
	}
	wk, err := r.readBits(7)
	if err != nil {
		return nil, err
	}
	if bk == wk || bk >= uint64(SquareNB) || wk >= uint64(SquareNB) {
		return nil, fmt.Errorf("bad king squares %d, %d", bk, wk)
	}

	pos := NewPosition()
	pos.gamePly = 1
	if side == 1 {
		pos.sideToMove = White
	}
	pos.board[bk] = NewPiece(Black, King)
	pos.board[wk] = NewPiece(White, King)

	for sq := Square(0); sq < SquareNB; sq++ {
		if uint64(sq) == bk || uint64(sq) == wk {
			continue
		}
		raw, err := r.readCode(boardCodes)
		if err != nil {
			return nil, err
		}
		if raw == NoPieceType {
			continue
		}
		color, err := r.readBits(1)
		if err != nil {
			return nil, err
		}
		pc := NewPiece(Color(color), raw)
		if raw.CanPromote() {
			promo, err := r.readBits(1)
			if err != nil {
				return nil, err
			}
			if promo == 1 {
				pc = pc.Promote()
			}
		}
		pos.board[sq] = pc
	}

	for r.pos < 256 {
		raw, err := r.readCode(handCodes)
		if err != nil {
			return nil, err
		}
		color, err := r.readBits(1)
		if err != nil {
			return nil, err
		}
		if raw.CanPromote() {
			promo, err := r.readBits(1)
			if err != nil {
				return nil, err
			}
			if promo != 0 {
				return nil, fmt.Errorf("promoted %s in hand", NewPiece(Black, raw))
			}
		}
		pos.AddHandCount(Color(color), raw, 1)
	}
	return pos, nil
}

// Bytes returns the packed words in little-endian order.
func (p Packed256) Bytes() []byte {
	b := make([]byte, 32)
	for i, w := range p.Words {
		binary.LittleEndian.PutUint64(b[i*8:], w)
	}
	return b
}

// Packed256FromBytes is the inverse of Bytes.
func Packed256FromBytes(b []byte) (Packed256, error) {
	if len(b) != 32 {
		return Packed256{}, fmt.Errorf("packed position needs 32 bytes, got %d", len(b))
	}
	var p Packed256
	for i := range p.Words {
		p.Words[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return p, nil
}
