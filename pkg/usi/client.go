package usi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"zshogi/pkg/shogi"
)

// Client runs the usual USI conversation over a Runner.
type Client struct {
	r Runner
}

func NewClient(r Runner) *Client {
	return &Client{r: r}
}

// Runner returns the underlying Runner.
func (c *Client) Runner() Runner {
	return c.r
}

// EngineInfo is what the engine reports during the handshake.
type EngineInfo struct {
	Name    string
	Author  string
	Options []string
}

// Handshake sends usi, the given options in key order, then isready.
func (c *Client) Handshake(ctx context.Context, options map[string]string) (EngineInfo, error) {
	resp, err := c.r.Run(ctx, "usi")
	if err != nil {
		return EngineInfo{}, err
	}
	var info EngineInfo
	sawOK := false
	for _, line := range strings.Split(resp, "\n") {
		e, err := ParseLine(line)
		if err != nil {
			continue
		}
		switch e.Type {
		case EventID:
			switch e.Key {
			case "name":
				info.Name = e.Value
			case "author":
				info.Author = e.Value
			}
		case EventOption:
			info.Options = append(info.Options, e.Key)
		case EventUSIOK:
			sawOK = true
		}
	}
	if !sawOK {
		return info, fmt.Errorf("usi: no usiok in %q", resp)
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := c.r.Run(ctx, fmt.Sprintf("setoption name %s value %s", k, options[k])); err != nil {
			return info, err
		}
	}

	resp, err = c.r.Run(ctx, "isready")
	if err != nil {
		return info, err
	}
	if !strings.Contains(resp, "readyok") {
		return info, fmt.Errorf("isready: no readyok in %q", resp)
	}
	return info, nil
}

func (c *Client) NewGame(ctx context.Context) error {
	_, err := c.r.Run(ctx, "usinewgame")
	return err
}

func (c *Client) SetPosition(ctx context.Context, pos *shogi.Position) error {
	_, err := c.r.Run(ctx, PositionCommand(pos))
	return err
}

// LegalMoves asks the engine for the moves it accepts in pos.
func (c *Client) LegalMoves(ctx context.Context, pos *shogi.Position) ([]shogi.Move, error) {
	if err := c.SetPosition(ctx, pos); err != nil {
		return nil, err
	}
	resp, err := c.r.Run(ctx, "moves")
	if err != nil {
		return nil, err
	}
	return ParseMoves(resp)
}

// BestMove searches pos with "go <goArgs>".
func (c *Client) BestMove(ctx context.Context, pos *shogi.Position, goArgs string) (BestMove, error) {
	if err := c.SetPosition(ctx, pos); err != nil {
		return BestMove{}, err
	}
	resp, err := c.r.Run(ctx, strings.TrimSpace("go "+goArgs))
	if err != nil {
		return BestMove{}, err
	}
	return ParseBestMove(resp)
}

// Evaluate runs a bounded search and returns the last reported score from
// Black's point of view, with the engine's best move.
func (c *Client) Evaluate(ctx context.Context, pos *shogi.Position, moveTimeMs int) (Score, BestMove, error) {
	if moveTimeMs <= 0 {
		moveTimeMs = 1
	}
	if err := c.SetPosition(ctx, pos); err != nil {
		return Score{}, BestMove{}, err
	}
	resp, err := c.r.Run(ctx, fmt.Sprintf("go movetime %d", moveTimeMs))
	if err != nil {
		return Score{}, BestMove{}, err
	}
	best, err := ParseBestMove(resp)
	if err != nil {
		return Score{}, BestMove{}, err
	}
	score, ok := LastScore(resp)
	if !ok {
		return Score{}, best, fmt.Errorf("no score in engine output")
	}
	if pos.SideToMove() == shogi.White {
		score = flipScore(score)
	}
	return score, best, nil
}
