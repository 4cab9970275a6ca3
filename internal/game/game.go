package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tenorite/tenorite-server/internal/protocol"
	"github.com/tenorite/tenorite-server/pkg/types"
)

// TimedMessage is one timeline entry, stamped with the elapsed match time.
type TimedMessage struct {
	Elapsed time.Duration
	Message protocol.Message
}

type timedMessageJSON struct {
	Elapsed int64          `json:"t"`
	Message types.Envelope `json:"m"`
}

func (m TimedMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(timedMessageJSON{Elapsed: m.Elapsed.Milliseconds(), Message: protocol.Encode(m.Message)})
}

func (m *TimedMessage) UnmarshalJSON(b []byte) error {
	var raw timedMessageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	msg, err := protocol.Decode(raw.Message)
	if err != nil {
		return fmt.Errorf("timeline entry at %dms: %w", raw.Elapsed, err)
	}
	m.Elapsed = time.Duration(raw.Elapsed) * time.Millisecond
	m.Message = msg
	return nil
}

// RecordedGame is the immutable result of a finished match. Players is the
// roster as it was when the match started.
type RecordedGame struct {
	ID       string         `json:"id"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
	Tempo    Tempo          `json:"tempo"`
	Mode     ModeID         `json:"mode"`
	Rules    Rules          `json:"rules"`
	Players  []Player       `json:"players"`
	Messages []TimedMessage `json:"messages"`
}

// Ranking replays the timeline of the game.
func (g *RecordedGame) Ranking() Ranking {
	return CalculateRanking(g.Rules, g.Players, g.Duration, g.Messages)
}
