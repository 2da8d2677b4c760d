package kif

import (
	"errors"
	"fmt"
	"strings"

	"zshogi/pkg/shogi"
)

// handicapSFEN maps 手合割 names to their starting positions. The handicap
// giver is White and moves first.
var handicapSFEN = map[string]string{
	"平手":   shogi.StartSFEN,
	"香落ち":  "lnsgkgsn1/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
	"右香落ち": "1nsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
	"角落ち":  "lnsgkgsnl/1r7/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
	"飛車落ち": "lnsgkgsnl/7b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
	"飛香落ち": "lnsgkgsn1/7b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
	"二枚落ち": "lnsgkgsnl/9/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
	"四枚落ち": "1nsgkgsn1/9/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
	"六枚落ち": "2sgkgs2/9/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 1",
}

// initialPosition prefers a board diagram, then the 手合割 header. A record
// with neither starts from the standard position.
func initialPosition(lines []string) (*shogi.Position, error) {
	if boardLines := collectBoardLines(lines); len(boardLines) > 0 {
		return diagramPosition(lines, boardLines)
	}
	handicap := headerValue(lines, "手合割")
	if handicap == "" {
		return shogi.FromSFEN(shogi.StartSFEN)
	}
	for name, sfen := range handicapSFEN {
		if strings.HasPrefix(handicap, name) {
			return shogi.FromSFEN(sfen)
		}
	}
	return nil, fmt.Errorf("unsupported handicap %q without board diagram", handicap)
}

func diagramPosition(lines, boardLines []string) (*shogi.Position, error) {
	if len(boardLines) < shogi.RankNB {
		return nil, fmt.Errorf("board lines must be 9 rows, got %d", len(boardLines))
	}
	pos := shogi.NewPosition()
	pos.SetPly(1)
	for r := 0; r < shogi.RankNB; r++ {
		cells, err := parseBoardRow(boardLines[r])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r+1, err)
		}
		for i, pc := range cells {
			pos.PutPiece(shogi.NewSquare(shogi.FileNB-1-i, r), pc)
		}
	}
	pos.SetSideToMove(parseTurn(lines))
	for _, side := range []struct {
		key   string
		color shogi.Color
	}{{"先手の持駒", shogi.Black}, {"下手の持駒", shogi.Black}, {"後手の持駒", shogi.White}, {"上手の持駒", shogi.White}} {
		for _, line := range lines {
			trim := strings.TrimSpace(line)
			if !strings.HasPrefix(trim, side.key) {
				continue
			}
			counts, err := parseHandLine(trim)
			if err != nil {
				return nil, err
			}
			for raw, n := range counts {
				if pos.HandCount(side.color, raw)+n > shogi.MaxHandCount(raw) {
					return nil, fmt.Errorf("too many %s in hand", shogi.NewPiece(side.color, raw))
				}
				pos.AddHandCount(side.color, raw, n)
			}
		}
	}
	// Round-trip through SFEN so the diagram gets the same checks as text.
	return shogi.FromSFEN(pos.SFEN())
}

func collectBoardLines(lines []string) []string {
	var board []string
	for _, line := range lines {
		// Rows look like "|v香v桂 ... |一"; the rank label is dropped.
		trim := strings.TrimSpace(line)
		if !strings.HasPrefix(trim, "|") {
			continue
		}
		if end := strings.LastIndex(trim, "|"); end > 0 {
			board = append(board, trim[:end+1])
		}
	}
	return board
}

func parseBoardRow(line string) ([]shogi.Piece, error) {
	trim := strings.TrimSpace(line)
	trim = strings.TrimPrefix(trim, "|")
	trim = strings.TrimSuffix(trim, "|")
	runes := []rune(trim)
	var cells []shogi.Piece
	for i := 0; i < len(runes); {
		r := runes[i]
		if r == ' ' || r == '\t' || r == '　' {
			i++
			continue
		}
		if r == '・' {
			cells = append(cells, shogi.NoPiece)
			i++
			continue
		}
		color := shogi.Black
		if r == 'v' {
			color = shogi.White
			i++
			if i >= len(runes) {
				return nil, errors.New("dangling gote marker")
			}
		}
		pt, consumed, err := parseBoardPiece(runes[i:])
		if err != nil {
			return nil, err
		}
		cells = append(cells, shogi.NewPiece(color, pt))
		i += consumed
	}
	if len(cells) != shogi.FileNB {
		return nil, fmt.Errorf("expected 9 cells, got %d", len(cells))
	}
	return cells, nil
}

func parseBoardPiece(runes []rune) (shogi.PieceType, int, error) {
	if len(runes) == 0 {
		return shogi.NoPieceType, 0, errors.New("missing piece")
	}
	if runes[0] == '成' {
		if len(runes) < 2 {
			return shogi.NoPieceType, 0, errors.New("missing promoted piece")
		}
		pt, ok := basePiece(runes[1])
		if !ok || !pt.CanPromote() {
			return shogi.NoPieceType, 0, fmt.Errorf("unknown promoted piece %c", runes[1])
		}
		return pt.Promote(), 2, nil
	}
	for _, def := range pieceDefs {
		if []rune(def.name)[0] == runes[0] && len([]rune(def.name)) == 1 {
			return def.pt, 1, nil
		}
	}
	return shogi.NoPieceType, 0, fmt.Errorf("unknown piece %c", runes[0])
}

func basePiece(r rune) (shogi.PieceType, bool) {
	switch r {
	case '歩':
		return shogi.Pawn, true
	case '香':
		return shogi.Lance, true
	case '桂':
		return shogi.Knight, true
	case '銀':
		return shogi.Silver, true
	case '金':
		return shogi.Gold, true
	case '角':
		return shogi.Bishop, true
	case '飛':
		return shogi.Rook, true
	case '玉', '王':
		return shogi.King, true
	default:
		return shogi.NoPieceType, false
	}
}

func parseTurn(lines []string) shogi.Color {
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if strings.HasPrefix(trim, "手番") {
			if strings.Contains(trim, "後手") || strings.Contains(trim, "上手") {
				return shogi.White
			}
			return shogi.Black
		}
		if strings.HasPrefix(trim, "後手番") || strings.HasPrefix(trim, "上手番") {
			return shogi.White
		}
	}
	return shogi.Black
}

func parseHandLine(line string) (map[shogi.PieceType]int, error) {
	parts := strings.SplitN(line, "：", 2)
	if len(parts) != 2 {
		parts = strings.SplitN(line, ":", 2)
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid hand line: %s", line)
	}
	text := strings.TrimSpace(parts[1])
	counts := make(map[shogi.PieceType]int)
	if text == "なし" || text == "" {
		return counts, nil
	}
	runes := []rune(text)
	for i := 0; i < len(runes); {
		if runes[i] == ' ' || runes[i] == '　' {
			i++
			continue
		}
		pt, ok := basePiece(runes[i])
		if !ok || !pt.IsDroppable() {
			return nil, fmt.Errorf("unknown hand piece %c", runes[i])
		}
		i++
		n, consumed := parseCount(runes[i:])
		i += consumed
		if consumed == 0 {
			n = 1
		}
		counts[pt] += n
	}
	return counts, nil
}

// parseCount reads an Arabic or kanji count such as 18 or 十八.
func parseCount(runes []rune) (int, int) {
	if len(runes) == 0 {
		return 0, 0
	}
	if runes[0] >= '0' && runes[0] <= '9' {
		val, i := 0, 0
		for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
			val = val*10 + int(runes[i]-'0')
			i++
		}
		return val, i
	}
	value, consumed := 0, 0
	for consumed < len(runes) {
		n, ok := kanjiDigit(runes[consumed])
		if !ok {
			break
		}
		if n == 10 {
			if value == 0 {
				value = 1
			}
			value *= 10
		} else {
			value += n
		}
		consumed++
	}
	return value, consumed
}

func kanjiDigit(r rune) (int, bool) {
	switch r {
	case '一':
		return 1, true
	case '二':
		return 2, true
	case '三':
		return 3, true
	case '四':
		return 4, true
	case '五':
		return 5, true
	case '六':
		return 6, true
	case '七':
		return 7, true
	case '八':
		return 8, true
	case '九':
		return 9, true
	case '十':
		return 10, true
	default:
		return 0, false
	}
}
