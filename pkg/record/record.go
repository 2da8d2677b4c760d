// Package record stores finished games as parquet rows.
package record

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"zshogi/pkg/kif"
	"zshogi/pkg/shogi"
)

type MoveEval struct {
	Ply        int32  `parquet:"name=ply, type=INT32"`
	ScoreType  string `parquet:"name=score_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	ScoreValue int32  `parquet:"name=score_value, type=INT32"`
	BestMove   string `parquet:"name=best_move, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// GameRecord is one game. Moves are USI strings played from StartSFEN;
// MoveEvals[i] scores the position after Moves[i] from Black's side.
type GameRecord struct {
	GameID      string     `parquet:"name=game_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartSFEN   string     `parquet:"name=start_sfen, type=BYTE_ARRAY, convertedtype=UTF8"`
	SenteName   string     `parquet:"name=sente_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	SenteRating int32      `parquet:"name=sente_rating, type=INT32"`
	GoteName    string     `parquet:"name=gote_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	GoteRating  int32      `parquet:"name=gote_rating, type=INT32"`
	Result      string     `parquet:"name=result, type=BYTE_ARRAY, convertedtype=UTF8"`
	WinReason   string     `parquet:"name=win_reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	MoveCount   int32      `parquet:"name=move_count, type=INT32"`
	Moves       []string   `parquet:"name=moves, type=LIST, valuetype=BYTE_ARRAY, valueconvertedtype=UTF8"`
	MoveEvals   []MoveEval `parquet:"name=move_evals, type=LIST"`
}

// FromGame converts a parsed KIF game. The game id is the file name. When
// the game ended with a foul the last move is dropped, since the position
// it produced cannot be searched.
func FromGame(path string, g *kif.Game) (GameRecord, error) {
	if g.MoveCount() == 0 {
		return GameRecord{}, fmt.Errorf("%s: %w", path, kif.ErrNoMoves)
	}
	moves := g.Moves
	if g.FoulEnd {
		moves = moves[:len(moves)-1]
	}
	if _, err := g.PositionAt(len(moves)); err != nil {
		return GameRecord{}, fmt.Errorf("%s: %w", path, err)
	}
	return GameRecord{
		GameID:      filepath.Base(path),
		StartSFEN:   g.Initial.SFEN(),
		SenteName:   g.Players.SenteName,
		SenteRating: g.Players.SenteRating,
		GoteName:    g.Players.GoteName,
		GoteRating:  g.Players.GoteRating,
		Result:      g.Result,
		WinReason:   g.WinReason,
		MoveCount:   int32(len(moves)),
		Moves:       moveStrings(moves),
	}, nil
}

// FromPosition records the moves played on p since its root under a fresh
// random id. p is not modified.
func FromPosition(p *shogi.Position, players kif.Players) GameRecord {
	start := p.Clone()
	start.UndoAll()
	moves := p.Moves()
	return GameRecord{
		GameID:      uuid.NewString(),
		StartSFEN:   start.SFEN(),
		SenteName:   players.SenteName,
		SenteRating: players.SenteRating,
		GoteName:    players.GoteName,
		GoteRating:  players.GoteRating,
		Result:      "unknown",
		MoveCount:   int32(len(moves)),
		Moves:       moveStrings(moves),
	}
}

// Position replays the record's moves and returns the final position.
func (r GameRecord) Position() (*shogi.Position, error) {
	pos, err := shogi.FromSFEN(r.StartSFEN)
	if err != nil {
		return nil, err
	}
	for i, text := range r.Moves {
		m, err := shogi.ParseMove(text)
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
		if err := kif.Apply(pos, m); err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
	}
	return pos, nil
}

func moveStrings(moves []shogi.Move) []string {
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = m.String()
	}
	return out
}
