package usi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"zshogi/pkg/shogi"
)

// ErrNoBestMove is returned when a response carries no bestmove line.
var ErrNoBestMove = errors.New("no bestmove in engine output")

// PositionCommand builds "position sfen <sfen>" for p.
func PositionCommand(p *shogi.Position) string {
	return "position sfen " + p.SFEN()
}

// ParseMoves reads whitespace-separated USI moves, as returned for "moves".
func ParseMoves(response string) ([]shogi.Move, error) {
	fields := strings.Fields(response)
	moves := make([]shogi.Move, 0, len(fields))
	for _, f := range fields {
		m, err := shogi.ParseMove(f)
		if err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// BestMove is the engine's answer to "go". Resign and Win leave Move unset.
type BestMove struct {
	Move   shogi.Move
	Ponder shogi.Move
	Resign bool
	Win    bool
}

func (b BestMove) String() string {
	switch {
	case b.Resign:
		return "resign"
	case b.Win:
		return "win"
	}
	return b.Move.String()
}

// ParseBestMove finds the bestmove line in response.
func ParseBestMove(response string) (BestMove, error) {
	for _, line := range strings.Split(response, "\n") {
		e, err := ParseLine(line)
		if err != nil || e.Type != EventBestMove {
			continue
		}
		var b BestMove
		switch e.Move {
		case "resign":
			b.Resign = true
		case "win":
			b.Win = true
		default:
			if b.Move, err = shogi.ParseMove(e.Move); err != nil {
				return BestMove{}, fmt.Errorf("bestmove: %w", err)
			}
		}
		if e.Ponder != "" {
			if b.Ponder, err = shogi.ParseMove(e.Ponder); err != nil {
				return BestMove{}, fmt.Errorf("ponder: %w", err)
			}
		}
		return b, nil
	}
	return BestMove{}, ErrNoBestMove
}

// Score represents a USI evaluation score.
type Score struct {
	Kind  string
	Value int
}

// String returns a stable text representation for comments/logging.
func (s Score) String() string {
	if s.Kind == "cp" {
		return fmt.Sprintf("cp %d", s.Value)
	}
	if s.Kind == "mate" {
		return fmt.Sprintf("mate %d", s.Value)
	}
	return "unknown"
}

func flipScore(score Score) Score {
	score.Value = -score.Value
	return score
}

// LastScore returns the score of the last info line in response that has one.
func LastScore(response string) (Score, bool) {
	var score Score
	found := false
	for _, line := range strings.Split(response, "\n") {
		if !strings.HasPrefix(line, "info") {
			continue
		}
		if s, ok := parseInfoScore(line); ok {
			score, found = s, true
		}
	}
	return score, found
}

func parseInfoScore(line string) (Score, bool) {
	fields := strings.Fields(line)
	for i := 0; i+2 < len(fields); i++ {
		if fields[i] != "score" {
			continue
		}
		kind := fields[i+1]
		value, err := strconv.Atoi(fields[i+2])
		if err != nil {
			return Score{}, false
		}
		if kind != "cp" && kind != "mate" {
			return Score{}, false
		}
		return Score{Kind: kind, Value: value}, true
	}
	return Score{}, false
}
