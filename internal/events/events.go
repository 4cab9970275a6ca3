// Package events carries the notifications channel sessions publish and the
// results pipeline consumes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/pkg/types"
)

var ErrUnknownEvent = errors.New("unknown event kind")
var ErrClosed = errors.New("bus closed")

type Kind string

const (
	KindChannelJoined  Kind = "channel.joined"
	KindChannelLeft    Kind = "channel.left"
	KindGameFinished   Kind = "game.finished"
	KindWinlistUpdated Kind = "winlist.updated"
)

type Event interface{ Kind() Kind }

type ChannelJoined struct {
	Tempo   game.Tempo  `json:"tempo"`
	Mode    game.ModeID `json:"mode"`
	Channel string      `json:"channel"`
	Slot    int         `json:"slot"`
	Name    string      `json:"name"`
}

type ChannelLeft struct {
	Tempo   game.Tempo  `json:"tempo"`
	Mode    game.ModeID `json:"mode"`
	Channel string      `json:"channel"`
	Slot    int         `json:"slot"`
	Name    string      `json:"name"`
}

type GameFinished struct {
	Tempo   game.Tempo         `json:"tempo"`
	Mode    game.ModeID        `json:"mode"`
	Channel string             `json:"channel"`
	Game    *game.RecordedGame `json:"game"`
	Ranking game.Ranking       `json:"ranking"`
}

type WinlistUpdated struct {
	Tempo   game.Tempo           `json:"tempo"`
	Mode    game.ModeID          `json:"mode"`
	Entries []types.WinlistEntry `json:"entries"`
}

func (ChannelJoined) Kind() Kind  { return KindChannelJoined }
func (ChannelLeft) Kind() Kind    { return KindChannelLeft }
func (GameFinished) Kind() Kind   { return KindGameFinished }
func (WinlistUpdated) Kind() Kind { return KindWinlistUpdated }

type Handler func(Event)

// Bus is a fire-and-forget publish/subscribe channel. Handlers run on a
// goroutine owned by the bus and must not block for long.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(h Handler) (unsubscribe func(), err error)
	Close() error
}

func decode(kind Kind, data []byte) (Event, error) {
	switch kind {
	case KindChannelJoined:
		return unmarshal[ChannelJoined](kind, data)
	case KindChannelLeft:
		return unmarshal[ChannelLeft](kind, data)
	case KindGameFinished:
		return unmarshal[GameFinished](kind, data)
	case KindWinlistUpdated:
		return unmarshal[WinlistUpdated](kind, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
}

func unmarshal[T Event](kind Kind, data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return v, nil
}
