package record

import (
	"context"
	"fmt"
	"strings"

	"zshogi/pkg/kif"
	"zshogi/pkg/shogi"
	"zshogi/pkg/usi"
)

// Evaluator scores a position from Black's side. *usi.Client implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, pos *shogi.Position, moveTimeMs int) (usi.Score, usi.BestMove, error)
}

// CachePlies bounds which plies are cached; openings repeat, middlegames
// rarely do.
const CachePlies = 30

type cachedEval struct {
	score usi.Score
	best  usi.BestMove
}

// Cache remembers evaluations by position, ignoring the move number. It is
// not safe for concurrent use; give each worker its own.
type Cache struct {
	entries map[string]cachedEval
	hits    int
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cachedEval)}
}

func (c *Cache) Len() int  { return len(c.entries) }
func (c *Cache) Hits() int { return c.hits }

func positionKey(pos *shogi.Position) string {
	if packed, err := shogi.Pack256(pos); err == nil {
		return string(packed.Bytes())
	}
	fields := strings.Fields(pos.SFEN())
	return strings.Join(fields[:3], " ")
}

// Evaluate replays rec and fills MoveEvals with one entry per move. cache
// may be nil.
func Evaluate(ctx context.Context, rec *GameRecord, ev Evaluator, moveTimeMs int, cache *Cache) error {
	pos, err := shogi.FromSFEN(rec.StartSFEN)
	if err != nil {
		return err
	}
	if cache == nil {
		cache = NewCache()
	}
	evals := make([]MoveEval, 0, len(rec.Moves))
	for i, text := range rec.Moves {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := shogi.ParseMove(text)
		if err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
		if err := kif.Apply(pos, m); err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
		key := positionKey(pos)
		entry, ok := cache.entries[key]
		if ok {
			cache.hits++
		} else {
			score, best, err := ev.Evaluate(ctx, pos, moveTimeMs)
			if err != nil {
				return fmt.Errorf("move %d: %w", i+1, err)
			}
			entry = cachedEval{score: score, best: best}
			if i < CachePlies {
				cache.entries[key] = entry
			}
		}
		evals = append(evals, MoveEval{
			Ply:        int32(i + 1),
			ScoreType:  entry.score.Kind,
			ScoreValue: int32(entry.score.Value),
			BestMove:   entry.best.String(),
		})
	}
	rec.MoveEvals = evals
	return nil
}
