package storage

import "time"

// GameRecord is one finished game. Data holds the full recorded game as
// JSON so it can be replayed.
type GameRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Tempo      string    `gorm:"size:16;index:idx_games_tempo_mode"`
	Mode       string    `gorm:"size:16;index:idx_games_tempo_mode"`
	Channel    string    `gorm:"size:32"`
	StartedAt  time.Time `gorm:"index"`
	DurationMS int64
	Players    int
	Winner     string `gorm:"size:64"`
	Data       []byte `gorm:"type:jsonb"`
	Ranking    []byte `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

func (GameRecord) TableName() string { return "games" }

// PlayerStats are cumulative numbers per player name, tempo and mode.
type PlayerStats struct {
	Name            string `gorm:"primaryKey;size:64"`
	Tempo           string `gorm:"primaryKey;size:16"`
	Mode            string `gorm:"primaryKey;size:16"`
	Games           int64
	Wins            int64
	Blocks          int64
	Lines           int64
	TwoLineCombos   int64
	ThreeLineCombos int64
	FourLineCombos  int64
	PlayingTimeMS   int64
	MaxLevel        int
	UpdatedAt       time.Time
}
