package game

import (
	"maps"
	"time"

	"github.com/tenorite/tenorite-server/internal/protocol"
)

// PlayingStats are the final numbers of one player in a finished game.
type PlayingStats struct {
	Player          Player        `json:"player"`
	PlayingTime     time.Duration `json:"playingTime"`
	Level           int           `json:"level"`
	Lines           int           `json:"lines"`
	TwoLineCombos   int           `json:"twoLineCombos"`
	ThreeLineCombos int           `json:"threeLineCombos"`
	FourLineCombos  int           `json:"fourLineCombos"`
	LastFieldHeight int           `json:"lastFieldHeight"`
	MaxFieldHeight  int           `json:"maxFieldHeight"`
	Blocks          int           `json:"blocks"`

	SpecialsReceived     map[protocol.Special]int `json:"specialsReceived"`
	SpecialsOnOpponent   map[protocol.Special]int `json:"specialsOnOpponent"`
	SpecialsOnTeamPlayer map[protocol.Special]int `json:"specialsOnTeamPlayer"`
	SpecialsOnSelf       map[protocol.Special]int `json:"specialsOnSelf"`
}

// NewPlayingStats builds a stats record. The tally maps are copied and a
// negative block count is reported as 0.
func NewPlayingStats(
	player Player,
	playingTime time.Duration,
	level, lines, twoLineCombos, threeLineCombos, fourLineCombos int,
	lastFieldHeight, maxFieldHeight, blocks int,
	received, onOpponent, onTeamPlayer, onSelf map[protocol.Special]int,
) PlayingStats {
	return PlayingStats{
		Player:               player,
		PlayingTime:          playingTime,
		Level:                level,
		Lines:                lines,
		TwoLineCombos:        twoLineCombos,
		ThreeLineCombos:      threeLineCombos,
		FourLineCombos:       fourLineCombos,
		LastFieldHeight:      lastFieldHeight,
		MaxFieldHeight:       maxFieldHeight,
		Blocks:               max(0, blocks),
		SpecialsReceived:     tally(received),
		SpecialsOnOpponent:   tally(onOpponent),
		SpecialsOnTeamPlayer: tally(onTeamPlayer),
		SpecialsOnSelf:       tally(onSelf),
	}
}

func tally(m map[protocol.Special]int) map[protocol.Special]int {
	out := protocol.NewSpecialCounts()
	maps.Copy(out, m)
	return out
}

func (s PlayingStats) BlocksPerMinute() float64 {
	ms := s.PlayingTime.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return float64(s.Blocks) * 60000 / float64(ms)
}

func (s PlayingStats) TotalSpecialsReceived() int { return sum(s.SpecialsReceived) }
func (s PlayingStats) TotalSpecialsOnSelf() int   { return sum(s.SpecialsOnSelf) }

// TotalSpecialsSent counts specials used on opponents and team players.
func (s PlayingStats) TotalSpecialsSent() int {
	return sum(s.SpecialsOnOpponent) + sum(s.SpecialsOnTeamPlayer)
}

func sum(m map[protocol.Special]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
