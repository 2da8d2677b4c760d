package shogi

import (
	"fmt"
	"strings"
)

// StateInfo is one link of the undo chain. Nodes are never modified after
// they are created, so cloned positions share their common prefix.
type StateInfo struct {
	previous      *StateInfo
	lastMove      Move
	capturedPiece Piece
}

func (st *StateInfo) Previous() *StateInfo {
	return st.previous
}

func (st *StateInfo) LastMove() Move {
	return st.lastMove
}

func (st *StateInfo) CapturedPiece() Piece {
	return st.capturedPiece
}

// IsRoot reports whether there is nothing left to undo.
func (st *StateInfo) IsRoot() bool {
	return st == nil || st.previous == nil
}

// Position is a board, two hands, the side to move, a ply counter and the
// chain of states that led here. A Position must not be shared between
// goroutines; use Clone.
type Position struct {
	board      [SquareNB]Piece
	hands      [ColorNB]Hand
	sideToMove Color
	gamePly    int
	state      *StateInfo
}

// NewPosition returns an empty board with Black to move at ply 0.
func NewPosition() *Position {
	return &Position{state: &StateInfo{}}
}

// NewStartPosition returns the standard initial position.
func NewStartPosition() *Position {
	pos, err := FromSFEN(StartSFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

func (p *Position) PieceAt(sq Square) Piece {
	return p.board[sq]
}

func (p *Position) PutPiece(sq Square, pc Piece) {
	p.board[sq] = pc
}

func (p *Position) RemovePiece(sq Square) {
	p.board[sq] = NoPiece
}

func (p *Position) Hand(c Color) Hand {
	return p.hands[c]
}

func (p *Position) HandCount(c Color, raw PieceType) int {
	return p.hands[c].Count(raw)
}

func (p *Position) AddHandCount(c Color, raw PieceType, d int) {
	p.hands[c] = p.hands[c].Add(raw, d)
}

func (p *Position) SideToMove() Color {
	return p.sideToMove
}

func (p *Position) SetSideToMove(c Color) {
	p.sideToMove = c
}

func (p *Position) Ply() int {
	return p.gamePly
}

func (p *Position) SetPly(ply int) {
	p.gamePly = ply
}

// State returns the head of the undo chain.
func (p *Position) State() *StateInfo {
	return p.state
}

func (p *Position) CanUndo() bool {
	return !p.state.IsRoot()
}

// LastMove returns NoMove at the root.
func (p *Position) LastMove() Move {
	if p.state == nil {
		return NoMove
	}
	return p.state.lastMove
}

// Moves returns the moves applied since the root, oldest first.
func (p *Position) Moves() []Move {
	var moves []Move
	for st := p.state; !st.IsRoot(); st = st.previous {
		moves = append(moves, st.lastMove)
	}
	for i, j := 0, len(moves)-1; i < j; i, j = i+1, j-1 {
		moves[i], moves[j] = moves[j], moves[i]
	}
	return moves
}

// Clone copies the board, hands, side and ply. The history is shared up to
// this point and diverges on the next DoMove of either position.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}

// DoMove applies m without checking legality and returns the captured
// piece, or NoPiece.
func (p *Position) DoMove(m Move) Piece {
	if p.state == nil {
		p.state = &StateInfo{}
	}
	captured := NoPiece
	to := m.To()
	us := p.sideToMove
	if m.IsDrop() {
		raw := m.DropPiece()
		p.AddHandCount(us, raw, -1)
		p.PutPiece(to, NewPiece(us, raw))
	} else {
		captured = p.PieceAt(to)
		if captured != NoPiece {
			p.RemovePiece(to)
			p.AddHandCount(us, captured.Raw(), 1)
		}
		from := m.From()
		pc := p.PieceAt(from)
		p.RemovePiece(from)
		if m.IsPromotion() {
			pc = pc.Promote()
		}
		p.PutPiece(to, pc)
	}
	p.sideToMove = us.Opponent()
	p.gamePly++
	p.state = &StateInfo{previous: p.state, lastMove: m, capturedPiece: captured}
	return captured
}

// UndoMove takes back the last move. It returns false, leaving the position
// untouched, when there is no history.
func (p *Position) UndoMove() bool {
	st := p.state
	if st.IsRoot() {
		return false
	}
	p.sideToMove = p.sideToMove.Opponent()
	us := p.sideToMove
	m := st.lastMove
	to := m.To()
	if m.IsDrop() {
		p.RemovePiece(to)
		p.AddHandCount(us, m.DropPiece(), 1)
	} else {
		pc := p.PieceAt(to)
		p.RemovePiece(to)
		if m.IsPromotion() {
			pc = pc.Demote()
		}
		p.PutPiece(m.From(), pc)
		if st.capturedPiece != NoPiece {
			p.AddHandCount(us, st.capturedPiece.Raw(), -1)
			p.PutPiece(to, st.capturedPiece)
		}
	}
	p.gamePly--
	p.state = st.previous
	return true
}

// UndoAll rewinds to the root and returns how many moves were taken back.
func (p *Position) UndoAll() int {
	n := 0
	for p.UndoMove() {
		n++
	}
	return n
}

// String draws the board from Black's side with hands above and below.
func (p *Position) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "White hand: %s\n", handString(p.hands[White], White))
	b.WriteString("  9  8  7  6  5  4  3  2  1\n")
	for r := 0; r < RankNB; r++ {
		for f := FileNB - 1; f >= 0; f-- {
			pc := p.PieceAt(NewSquare(f, r))
			switch {
			case pc == NoPiece:
				b.WriteString("  .")
			case pc.IsPromoted():
				b.WriteString(" " + pc.String())
			default:
				b.WriteString("  " + pc.String())
			}
		}
		fmt.Fprintf(&b, "  %c\n", rankChars[r])
	}
	fmt.Fprintf(&b, "Black hand: %s\n", handString(p.hands[Black], Black))
	fmt.Fprintf(&b, "Side to move: %s, ply: %d\n", p.sideToMove, p.gamePly)
	return b.String()
}

func handString(h Hand, c Color) string {
	if h.IsEmpty() {
		return "-"
	}
	var b strings.Builder
	writeHand(&b, h, c)
	return b.String()
}
