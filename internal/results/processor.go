// Package results reacts to finished games: it persists them, updates the
// win-list and announces the new win-list.
package results

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tenorite/tenorite-server/internal/events"
	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/obslog"
	"github.com/tenorite/tenorite-server/pkg/types"
)

type GameStore interface {
	SaveGame(ctx context.Context, channel string, g *game.RecordedGame, ranking game.Ranking) error
}

type Winlist interface {
	Record(ctx context.Context, tempo game.Tempo, mode game.ModeID, ranking game.Ranking) error
	Top(ctx context.Context, tempo game.Tempo, mode game.ModeID, n int) ([]types.WinlistEntry, error)
}

const (
	DefaultTimeout = 5 * time.Second
	DefaultTop     = 10
)

// Processor handles GameFinished events. Games or Winlist may be nil when
// the backing service is not configured.
type Processor struct {
	Bus     events.Bus
	Games   GameStore
	Winlist Winlist
	Timeout time.Duration
	Top     int

	unsubscribe func()
}

func (p *Processor) Start() error {
	unsubscribe, err := p.Bus.Subscribe(func(e events.Event) {
		gf, ok := e.(events.GameFinished)
		if !ok {
			return
		}
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := p.Handle(ctx, gf); err != nil {
			obslog.L().Error("game_results_failed", zap.String("game", gf.Game.ID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	p.unsubscribe = unsubscribe
	return nil
}

func (p *Processor) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// Handle runs every step even when an earlier one fails and returns the
// combined error.
func (p *Processor) Handle(ctx context.Context, gf events.GameFinished) error {
	if gf.Game == nil {
		return nil
	}
	var errs error
	if p.Games != nil {
		errs = multierr.Append(errs, p.Games.SaveGame(ctx, gf.Channel, gf.Game, gf.Ranking))
	}
	if p.Winlist == nil {
		return errs
	}
	if err := p.Winlist.Record(ctx, gf.Tempo, gf.Mode, gf.Ranking); err != nil {
		return multierr.Append(errs, err)
	}
	top := p.Top
	if top <= 0 {
		top = DefaultTop
	}
	entries, err := p.Winlist.Top(ctx, gf.Tempo, gf.Mode, top)
	if err != nil {
		return multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, p.Bus.Publish(ctx, events.WinlistUpdated{Tempo: gf.Tempo, Mode: gf.Mode, Entries: entries}))
	if errs == nil {
		obslog.L().Info("game_results_recorded", zap.String("game", gf.Game.ID), zap.Int("winlist", len(entries)))
	}
	return errs
}
