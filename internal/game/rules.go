package game

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownTempo = errors.New("unknown tempo")
var ErrUnknownMode = errors.New("unknown game mode")

type Tempo string

const (
	TempoNormal Tempo = "normal"
	TempoFast   Tempo = "fast"
)

var Tempos = []Tempo{TempoNormal, TempoFast}

func ParseTempo(s string) (Tempo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return TempoNormal, nil
	case "fast":
		return TempoFast, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTempo, s)
	}
}

type ModeID string

// Rules are the game parameters sent to every client when a game starts.
type Rules struct {
	StartingLevel   int
	LinesPerLevel   int
	LevelIncrease   int
	LinesPerSpecial int
	SpecialAdded    int
	SpecialCapacity int
	// percentages for line, square, left L, right L, left Z, right Z, half cross
	BlockOccurancy [7]int
	// percentages in protocol.Specials order
	SpecialOccurancy [9]int
	AverageLevels    bool
	ClassicRules     bool
}

func DefaultRules() Rules {
	return Rules{
		StartingLevel:    1,
		LinesPerLevel:    2,
		LevelIncrease:    1,
		LinesPerSpecial:  1,
		SpecialAdded:     1,
		SpecialCapacity:  18,
		BlockOccurancy:   [7]int{15, 15, 14, 14, 14, 14, 14},
		SpecialOccurancy: [9]int{22, 18, 1, 16, 1, 15, 5, 12, 10},
		AverageLevels:    true,
	}
}

// String renders the new-game parameter line.
func (r Rules) String() string {
	return fmt.Sprintf("0 %d %d %d %d %d %d %s %s %d %d",
		r.StartingLevel,
		r.LinesPerLevel,
		r.LevelIncrease,
		r.LinesPerSpecial,
		r.SpecialAdded,
		r.SpecialCapacity,
		occurancy(r.BlockOccurancy[:]),
		occurancy(r.SpecialOccurancy[:]),
		btoi(r.AverageLevels),
		btoi(r.ClassicRules),
	)
}

func occurancy(pcts []int) string {
	var b strings.Builder
	for i, p := range pcts {
		b.WriteString(strings.Repeat(fmt.Sprint(i+1), p))
	}
	if b.Len() == 0 {
		return "1"
	}
	return b.String()
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Mode is a game variant a channel is dedicated to.
type Mode struct {
	ID          ModeID
	Title       string
	Description string
	Rules       Rules
}

const (
	Classic          ModeID = "CLASSIC"
	SticksAndSquares ModeID = "SNS"
)

var modes = []Mode{
	{
		ID:          Classic,
		Title:       "Classic TetriNET",
		Description: "the original rules, lines are added to opponents on multi line clears",
		Rules: func() Rules {
			r := DefaultRules()
			r.ClassicRules = true
			return r
		}(),
	},
	{
		ID:          SticksAndSquares,
		Title:       "Sticks & Squares",
		Description: "only sticks and squares, no specials",
		Rules: func() Rules {
			r := DefaultRules()
			r.ClassicRules = true
			r.SpecialAdded = 0
			r.SpecialCapacity = 0
			r.BlockOccurancy = [7]int{50, 50, 0, 0, 0, 0, 0}
			r.SpecialOccurancy = [9]int{}
			return r
		}(),
	},
}

func Modes() []Mode { return append([]Mode(nil), modes...) }

func FindMode(id string) (Mode, error) {
	for _, m := range modes {
		if strings.EqualFold(string(m.ID), strings.TrimSpace(id)) {
			return m, nil
		}
	}
	return Mode{}, fmt.Errorf("%w: %q", ErrUnknownMode, id)
}
