// Package storage persists finished games and cumulative player statistics
// in PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tenorite/tenorite-server/internal/game"
)

var ErrGameNotFound = errors.New("game not found")

type Store struct{ db *gorm.DB }

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&GameRecord{}, &PlayerStats{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveGame stores a finished game and adds its ranking to the players'
// cumulative stats, in one transaction.
func (s *Store) SaveGame(ctx context.Context, channel string, g *game.RecordedGame, ranking game.Ranking) error {
	rec, err := newGameRecord(channel, g, ranking)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert game %s: %w", g.ID, err)
		}
		for _, d := range statsDeltas(g, ranking) {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "name"}, {Name: "tempo"}, {Name: "mode"}},
				DoUpdates: clause.Assignments(map[string]any{
					"games":             gorm.Expr("player_stats.games + EXCLUDED.games"),
					"wins":              gorm.Expr("player_stats.wins + EXCLUDED.wins"),
					"blocks":            gorm.Expr("player_stats.blocks + EXCLUDED.blocks"),
					"lines":             gorm.Expr("player_stats.lines + EXCLUDED.lines"),
					"two_line_combos":   gorm.Expr("player_stats.two_line_combos + EXCLUDED.two_line_combos"),
					"three_line_combos": gorm.Expr("player_stats.three_line_combos + EXCLUDED.three_line_combos"),
					"four_line_combos":  gorm.Expr("player_stats.four_line_combos + EXCLUDED.four_line_combos"),
					"playing_time_ms":   gorm.Expr("player_stats.playing_time_ms + EXCLUDED.playing_time_ms"),
					"max_level":         gorm.Expr("GREATEST(player_stats.max_level, EXCLUDED.max_level)"),
					"updated_at":        gorm.Expr("EXCLUDED.updated_at"),
				}),
			}).Create(&d).Error
			if err != nil {
				return fmt.Errorf("update stats of %s: %w", d.Name, err)
			}
		}
		return nil
	})
}

func (s *Store) Game(ctx context.Context, id string) (*game.RecordedGame, error) {
	var rec GameRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	var g game.RecordedGame
	if err := json.Unmarshal(rec.Data, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) PlayerStats(ctx context.Context, tempo game.Tempo, mode game.ModeID, name string) (*PlayerStats, error) {
	var ps PlayerStats
	err := s.db.WithContext(ctx).
		Where("name = ? AND tempo = ? AND mode = ?", name, string(tempo), string(mode)).
		First(&ps).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stats of %s: %w", name, err)
	}
	return &ps, nil
}

func newGameRecord(channel string, g *game.RecordedGame, ranking game.Ranking) (GameRecord, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return GameRecord{}, fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	rk, err := json.Marshal(ranking)
	if err != nil {
		return GameRecord{}, fmt.Errorf("encode ranking %s: %w", g.ID, err)
	}
	rec := GameRecord{
		ID:         g.ID,
		Tempo:      string(g.Tempo),
		Mode:       string(g.Mode),
		Channel:    channel,
		StartedAt:  g.Started,
		DurationMS: g.Duration.Milliseconds(),
		Players:    len(g.Players),
		Data:       data,
		Ranking:    rk,
	}
	if w, ok := ranking.Winner(); ok && len(ranking) > 1 {
		rec.Winner = w.Player.Name
	}
	return rec, nil
}

// statsDeltas is what one game adds to each ranked player's totals.
// Teammates of the winner share the win.
func statsDeltas(g *game.RecordedGame, ranking game.Ranking) []PlayerStats {
	winner, ok := ranking.Winner()
	out := make([]PlayerStats, 0, len(ranking))
	for i, st := range ranking {
		won := ok && len(ranking) > 1 && (i == 0 || st.Player.IsTeamPlayerOf(winner.Player))
		d := PlayerStats{
			Name:            st.Player.Name,
			Tempo:           string(g.Tempo),
			Mode:            string(g.Mode),
			Games:           1,
			Blocks:          int64(st.Blocks),
			Lines:           int64(st.Lines),
			TwoLineCombos:   int64(st.TwoLineCombos),
			ThreeLineCombos: int64(st.ThreeLineCombos),
			FourLineCombos:  int64(st.FourLineCombos),
			PlayingTimeMS:   st.PlayingTime.Milliseconds(),
			MaxLevel:        st.Level,
		}
		if won {
			d.Wins = 1
		}
		out = append(out, d)
	}
	return out
}
