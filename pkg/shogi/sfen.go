package shogi

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	StartSFEN   = "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"
	MatsuriSFEN = "l6nl/5+P1gk/2np1S3/p1p4Pp/3P2Sp1/1PPb2P1P/P5GS1/R8/LN4bKL w RGgsn5p 1"
)

// FromSFEN parses "<board> <side> <hand> [<ply>]". A missing or zero ply
// becomes 1. The returned position has no history.
func FromSFEN(text string) (*Position, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 && len(fields) != 4 {
		return nil, fmt.Errorf("%w: sfen needs 3 or 4 fields, got %d", ErrMalformedInput, len(fields))
	}
	pos := NewPosition()
	if err := pos.parseBoard(fields[0]); err != nil {
		return nil, err
	}
	switch fields[1] {
	case "b":
		pos.sideToMove = Black
	case "w":
		pos.sideToMove = White
	default:
		return nil, fmt.Errorf("%w: side to move %q", ErrMalformedInput, fields[1])
	}
	if err := pos.parseHands(fields[2]); err != nil {
		return nil, err
	}
	pos.gamePly = 1
	if len(fields) == 4 {
		ply, err := strconv.Atoi(fields[3])
		if err != nil || !isDigits(fields[3]) {
			return nil, fmt.Errorf("%w: ply %q", ErrMalformedInput, fields[3])
		}
		if ply > 0 {
			pos.gamePly = ply
		}
	}
	return pos, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func (p *Position) parseBoard(board string) error {
	ranks := strings.Split(board, "/")
	if len(ranks) != RankNB {
		return fmt.Errorf("%w: board has %d ranks", ErrMalformedInput, len(ranks))
	}
	for r, row := range ranks {
		f := FileNB - 1
		for i := 0; i < len(row); i++ {
			c := row[i]
			if c >= '1' && c <= '9' {
				f -= int(c - '0')
				if f < -1 {
					return fmt.Errorf("%w: rank %d overflows", ErrMalformedInput, r+1)
				}
				continue
			}
			token := row[i : i+1]
			if c == '+' {
				if i+1 >= len(row) {
					return fmt.Errorf("%w: dangling '+' in rank %d", ErrMalformedInput, r+1)
				}
				token = row[i : i+2]
				i++
			}
			pc := ParsePiece(token)
			if pc == NoPiece {
				return fmt.Errorf("%w: piece %q", ErrMalformedInput, token)
			}
			if f < 0 {
				return fmt.Errorf("%w: rank %d overflows", ErrMalformedInput, r+1)
			}
			p.board[NewSquare(f, r)] = pc
			f--
		}
		if f != -1 {
			return fmt.Errorf("%w: rank %d has %d files", ErrMalformedInput, r+1, FileNB-1-f)
		}
	}
	return nil
}

func (p *Position) parseHands(hand string) error {
	if hand == "-" {
		return nil
	}
	count := 0
	for i := 0; i < len(hand); i++ {
		c := hand[i]
		if c >= '0' && c <= '9' {
			count = count*10 + int(c-'0')
			if count > handMax[Pawn] {
				return fmt.Errorf("%w: hand count in %q", ErrMalformedInput, hand)
			}
			continue
		}
		pc := ParsePiece(hand[i : i+1])
		if pc == NoPiece || !pc.Type().IsDroppable() {
			return fmt.Errorf("%w: hand piece %q", ErrMalformedInput, hand[i:i+1])
		}
		if i > 0 && hand[i-1] >= '0' && hand[i-1] <= '9' {
			if count == 0 {
				return fmt.Errorf("%w: zero count in hand %q", ErrMalformedInput, hand)
			}
		} else {
			count = 1
		}
		c0, raw := pc.Color(), pc.Raw()
		if p.hands[c0].Count(raw)+count > handMax[raw] {
			return fmt.Errorf("%w: too many %s in hand", ErrMalformedInput, pc)
		}
		p.AddHandCount(c0, raw, count)
		count = 0
	}
	if hand == "" || hand[len(hand)-1] >= '0' && hand[len(hand)-1] <= '9' {
		return fmt.Errorf("%w: hand %q", ErrMalformedInput, hand)
	}
	return nil
}

// SFEN serializes the position. Empty hands render as "-".
func (p *Position) SFEN() string {
	var b strings.Builder
	for r := 0; r < RankNB; r++ {
		if r > 0 {
			b.WriteByte('/')
		}
		empty := 0
		for f := FileNB - 1; f >= 0; f-- {
			pc := p.board[NewSquare(f, r)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteByte(byte('0' + empty))
				empty = 0
			}
			b.WriteString(pc.String())
		}
		if empty > 0 {
			b.WriteByte(byte('0' + empty))
		}
	}
	b.WriteByte(' ')
	b.WriteString(p.sideToMove.String())
	b.WriteByte(' ')
	if p.hands[Black].IsEmpty() && p.hands[White].IsEmpty() {
		b.WriteByte('-')
	} else {
		writeHand(&b, p.hands[Black], Black)
		writeHand(&b, p.hands[White], White)
	}
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(p.gamePly))
	return b.String()
}

func writeHand(b *strings.Builder, h Hand, c Color) {
	for _, raw := range HandOrder {
		n := h.Count(raw)
		if n == 0 {
			continue
		}
		if n > 1 {
			b.WriteString(strconv.Itoa(n))
		}
		b.WriteString(NewPiece(c, raw).String())
	}
}
