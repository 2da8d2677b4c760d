// Package kif reads KIF game records into shogi positions and moves.
package kif

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"zshogi/pkg/shogi"
)

// ErrNoMoves is returned by operations that need at least one move.
var ErrNoMoves = errors.New("no moves in record")

type Players struct {
	SenteName   string
	SenteRating int32
	GoteName    string
	GoteRating  int32
}

// Game is a parsed KIF record. Moves are replayed from Initial with
// Position.DoMove.
type Game struct {
	Initial   *shogi.Position
	Moves     []shogi.Move
	Players   Players
	Result    string
	WinReason string
	// FoulEnd is set when the game ended with 反則勝ち or 反則負け. The
	// last move then produced a position engines cannot evaluate.
	FoulEnd bool
}

var moveLineRe = regexp.MustCompile(`^\s*(\d+)\s+(.+?)\s+\(`)
var terminalLineRe = regexp.MustCompile(`^\s*(\d+)\s+(.+?)\s*$`)
var fromSquareRe = regexp.MustCompile(`\((\d)(\d)\)`)
var nameRatingRe = regexp.MustCompile(`^(.+?)\((\d+)\)$`)

// Load reads and parses a KIF file.
func Load(path string) (*Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Parse decodes UTF-8 or Shift-JIS KIF text and parses it.
func Parse(data []byte) (*Game, error) {
	text, err := decodeKIF(data)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	return ParseLines(lines)
}

func ParseLines(lines []string) (*Game, error) {
	lines = mainLine(lines)
	initial, err := initialPosition(lines)
	if err != nil {
		return nil, err
	}
	moves, err := parseMoves(lines)
	if err != nil {
		return nil, err
	}
	result, reason := parseResult(lines)
	return &Game{
		Initial:   initial,
		Moves:     moves,
		Players:   parsePlayers(lines),
		Result:    result,
		WinReason: reason,
		FoulEnd:   reason == "反則勝ち" || reason == "反則負け",
	}, nil
}

func decodeKIF(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data), nil
	}
	reader := transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(decoded) {
		return "", errors.New("failed to decode Shift-JIS KIF")
	}
	return string(decoded), nil
}

// mainLine drops variations, which start at the first 変化 line.
func mainLine(lines []string) []string {
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "変化") {
			return lines[:i]
		}
	}
	return lines
}

func (g *Game) MoveCount() int {
	if g == nil {
		return 0
	}
	return len(g.Moves)
}

// PositionAt replays the first n moves on a copy of the initial position.
// The returned position can undo back to the start.
func (g *Game) PositionAt(n int) (*shogi.Position, error) {
	if g == nil {
		return nil, errors.New("game is nil")
	}
	if n < 0 || n > len(g.Moves) {
		return nil, fmt.Errorf("move out of range: %d", n)
	}
	pos := g.Initial.Clone()
	for i := 0; i < n; i++ {
		if err := Apply(pos, g.Moves[i]); err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
	}
	return pos, nil
}

func (g *Game) SFENAt(n int) (string, error) {
	pos, err := g.PositionAt(n)
	if err != nil {
		return "", err
	}
	return pos.SFEN(), nil
}

// Replay walks the game up to maxPly moves (0 means all), calling fn with
// each position and the move played from it. fn must not keep pos. Replay
// stops early when fn returns false or a move does not fit the board.
func (g *Game) Replay(maxPly int, fn func(pos *shogi.Position, next shogi.Move) bool) error {
	limit := len(g.Moves)
	if maxPly > 0 && maxPly < limit {
		limit = maxPly
	}
	pos := g.Initial.Clone()
	for i := 0; i < limit; i++ {
		if !fn(pos, g.Moves[i]) {
			return nil
		}
		if err := Apply(pos, g.Moves[i]); err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
	}
	return nil
}

// Apply checks that m fits pos and plays it. Only the board is checked:
// the piece exists, belongs to the side to move, does not capture its own
// side and can promote. Rules of play are left to the engine.
func Apply(pos *shogi.Position, m shogi.Move) error {
	us := pos.SideToMove()
	if m.IsDrop() {
		if pos.HandCount(us, m.DropPiece()) == 0 {
			return fmt.Errorf("no %s in hand", shogi.NewPiece(shogi.Black, m.DropPiece()))
		}
		if pos.PieceAt(m.To()) != shogi.NoPiece {
			return errors.New("drop destination occupied")
		}
		pos.DoMove(m)
		return nil
	}
	pc := pos.PieceAt(m.From())
	if pc == shogi.NoPiece {
		return fmt.Errorf("no piece at %s", m.From())
	}
	if pc.Color() != us {
		return errors.New("moving opponent piece")
	}
	if captured := pos.PieceAt(m.To()); captured != shogi.NoPiece && captured.Color() == us {
		return errors.New("capturing own piece")
	}
	if m.IsPromotion() && (pc.IsPromoted() || !pc.Type().CanPromote()) {
		return fmt.Errorf("cannot promote %s", pc)
	}
	pos.DoMove(m)
	return nil
}

func parseMoves(lines []string) ([]shogi.Move, error) {
	var moves []shogi.Move
	prevDest := shogi.SquareNB
	for i, line := range lines {
		match := moveLineRe.FindStringSubmatch(line)
		if len(match) == 0 {
			match = terminalLineRe.FindStringSubmatch(line)
			if len(match) == 0 || !isTerminalMove(strings.TrimSpace(match[2])) {
				continue
			}
		}
		moveText := strings.TrimSpace(match[2])
		if moveText == "" {
			continue
		}
		if isTerminalMove(moveText) {
			break
		}
		m, err := parseMoveToken(moveText, prevDest)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		moves = append(moves, m)
		prevDest = m.To()
	}
	return moves, nil
}

func parseMoveToken(token string, prevDest shogi.Square) (shogi.Move, error) {
	work := strings.TrimSpace(token)
	var dest shogi.Square
	if strings.HasPrefix(work, "同") {
		if prevDest == shogi.SquareNB {
			return shogi.NoMove, errors.New("same-square move without previous destination")
		}
		dest = prevDest
		work = strings.TrimSpace(strings.TrimLeft(strings.TrimPrefix(work, "同"), " 　"))
	} else {
		runes := []rune(work)
		if len(runes) < 2 {
			return shogi.NoMove, fmt.Errorf("invalid move token: %s", token)
		}
		file, ok := parseFileRune(runes[0])
		if !ok {
			return shogi.NoMove, fmt.Errorf("invalid destination file in %s", token)
		}
		rank, ok := kanjiDigit(runes[1])
		if !ok || rank > 9 {
			return shogi.NoMove, fmt.Errorf("invalid destination rank in %s", token)
		}
		dest = shogi.NewSquare(file-1, rank-1)
		work = strings.TrimSpace(string(runes[2:]))
	}

	from, hasFrom := parseFromSquare(work)
	if hasFrom {
		work = strings.TrimSpace(fromSquareRe.ReplaceAllString(work, ""))
	}

	pt, rest, err := parsePieceName(work)
	if err != nil {
		return shogi.NoMove, err
	}
	if strings.Contains(rest, "打") {
		if !pt.IsDroppable() {
			return shogi.NoMove, fmt.Errorf("cannot drop %s", token)
		}
		return shogi.NewDrop(pt, dest), nil
	}
	if !hasFrom {
		return shogi.NoMove, errors.New("missing source square")
	}
	if strings.Contains(rest, "成") && !strings.Contains(rest, "不成") {
		return shogi.NewPromotion(from, dest), nil
	}
	return shogi.NewMove(from, dest), nil
}

func isTerminalMove(token string) bool {
	switch token {
	case "投了", "中断", "持将棋", "千日手", "詰み", "切れ負け", "反則勝ち", "反則負け", "入玉勝ち", "勝ち宣言":
		return true
	default:
		return false
	}
}

func parseFromSquare(text string) (shogi.Square, bool) {
	match := fromSquareRe.FindStringSubmatch(text)
	if len(match) != 3 {
		return shogi.SquareNB, false
	}
	file := int(match[1][0] - '0')
	rank := int(match[2][0] - '0')
	if file < 1 || file > 9 || rank < 1 || rank > 9 {
		return shogi.SquareNB, false
	}
	return shogi.NewSquare(file-1, rank-1), true
}

func parseFileRune(r rune) (int, bool) {
	if r >= '1' && r <= '9' {
		return int(r - '0'), true
	}
	if r >= '１' && r <= '９' {
		return int(r-'１') + 1, true
	}
	return 0, false
}

type pieceDef struct {
	name string
	pt   shogi.PieceType
}

// pieceDefs is ordered so two-character names match before their suffixes.
var pieceDefs = []pieceDef{
	{"成銀", shogi.ProSilver},
	{"成桂", shogi.ProKnight},
	{"成香", shogi.ProLance},
	{"全", shogi.ProSilver},
	{"圭", shogi.ProKnight},
	{"杏", shogi.ProLance},
	{"と", shogi.ProPawn},
	{"馬", shogi.Horse},
	{"龍", shogi.Dragon},
	{"竜", shogi.Dragon},
	{"王", shogi.King},
	{"玉", shogi.King},
	{"飛", shogi.Rook},
	{"角", shogi.Bishop},
	{"金", shogi.Gold},
	{"銀", shogi.Silver},
	{"桂", shogi.Knight},
	{"香", shogi.Lance},
	{"歩", shogi.Pawn},
}

// parsePieceName reads the moving piece and returns what follows it, such
// as 成, 不成, 打 or a disambiguator like 右.
func parsePieceName(text string) (shogi.PieceType, string, error) {
	clean := strings.TrimSpace(text)
	for _, def := range pieceDefs {
		if strings.HasPrefix(clean, def.name) {
			return def.pt, strings.TrimPrefix(clean, def.name), nil
		}
	}
	return shogi.NoPieceType, "", fmt.Errorf("unknown piece in %s", text)
}

func parsePlayers(lines []string) Players {
	senteName, senteRating := parseNameRating(firstHeader(lines, "先手", "下手"))
	goteName, goteRating := parseNameRating(firstHeader(lines, "後手", "上手"))
	return Players{
		SenteName:   senteName,
		SenteRating: senteRating,
		GoteName:    goteName,
		GoteRating:  goteRating,
	}
}

func firstHeader(lines []string, keys ...string) string {
	for _, key := range keys {
		if v := headerValue(lines, key); v != "" {
			return v
		}
	}
	return ""
}

func headerValue(lines []string, key string) string {
	prefixes := []string{key + "：", key + ":"}
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		for _, prefix := range prefixes {
			if strings.HasPrefix(trim, prefix) {
				return strings.TrimSpace(strings.TrimPrefix(trim, prefix))
			}
		}
	}
	return ""
}

func parseNameRating(raw string) (string, int32) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}
	match := nameRatingRe.FindStringSubmatch(raw)
	if len(match) == 3 {
		return strings.TrimSpace(match[1]), parseInt32(match[2])
	}
	return raw, 0
}

func parseInt32(raw string) int32 {
	var value int
	_, _ = fmt.Sscanf(raw, "%d", &value)
	return int32(value)
}

func parseResult(lines []string) (string, string) {
	terminal, ply := findTerminalMove(lines)
	if terminal == "" {
		return "unknown", ""
	}
	return resultFromTerminal(terminal, ply)
}

func findTerminalMove(lines []string) (string, int) {
	ply := 0
	for _, line := range lines {
		match := moveLineRe.FindStringSubmatch(line)
		if len(match) == 0 {
			// Terminal markers may come without a clock.
			match = terminalLineRe.FindStringSubmatch(line)
		}
		if len(match) == 0 {
			continue
		}
		moveText := strings.TrimSpace(match[2])
		if moveText == "" {
			continue
		}
		ply++
		if isTerminalMove(moveText) {
			return moveText, ply
		}
	}
	return "", 0
}

func resultFromTerminal(token string, ply int) (string, string) {
	switch token {
	case "中断":
		return "abort", token
	case "持将棋", "千日手":
		return "draw", token
	case "反則勝ち", "詰み", "入玉勝ち", "勝ち宣言":
		return winnerFromPly(ply), token
	case "投了", "切れ負け", "反則負け":
		return winnerFromPly(ply + 1), token
	default:
		return "unknown", token
	}
}

func winnerFromPly(ply int) string {
	if ply%2 == 1 {
		return "sente_win"
	}
	return "gote_win"
}
