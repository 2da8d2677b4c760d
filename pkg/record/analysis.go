package record

// Side identifies a player in a record. NoSide means neither.
type Side int

const (
	NoSide Side = iota
	Sente
	Gote
)

func (s Side) String() string {
	switch s {
	case Sente:
		return "sente"
	case Gote:
		return "gote"
	default:
		return "none"
	}
}

// Winner reads the result column.
func (r GameRecord) Winner() Side {
	switch r.Result {
	case "sente_win":
		return Sente
	case "gote_win":
		return Gote
	default:
		return NoSide
	}
}

// FirstCrossing returns the side whose evaluation first reached threshold
// and the ply where it happened. A mate score counts as crossing for the
// side it favours.
func FirstCrossing(evals []MoveEval, threshold int) (Side, int32) {
	for _, e := range evals {
		if e.ScoreType == "mate" {
			if e.ScoreValue >= 0 {
				return Sente, e.Ply
			}
			return Gote, e.Ply
		}
		if e.ScoreType != "cp" {
			continue
		}
		if e.ScoreValue >= int32(threshold) {
			return Sente, e.Ply
		}
		if e.ScoreValue <= -int32(threshold) {
			return Gote, e.Ply
		}
	}
	return NoSide, 0
}

// Conversion counts how often the side that first crossed a threshold went
// on to win.
type Conversion struct {
	Threshold int
	Games     int
	Crossings int
	Wins      int
}

func (c *Conversion) Add(r GameRecord) {
	c.Games++
	side, _ := FirstCrossing(r.MoveEvals, c.Threshold)
	if side == NoSide {
		return
	}
	c.Crossings++
	if r.Winner() == side {
		c.Wins++
	}
}

// Rate is Wins/Crossings, or 0 without crossings.
func (c Conversion) Rate() float64 {
	if c.Crossings == 0 {
		return 0
	}
	return float64(c.Wins) / float64(c.Crossings)
}
