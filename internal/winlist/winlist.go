// Package winlist keeps the per tempo and mode win-list in Redis sorted sets.
package winlist

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/pkg/types"
)

// Points per place, winner first.
var Points = []int64{3, 2, 1}

const DefaultTop = 10

type Service struct{ rdb *redis.Client }

func New(rdb *redis.Client) *Service { return &Service{rdb: rdb} }

func NewFromURL(ctx context.Context, url string) (*Service, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb), nil
}

func (s *Service) Close() error { return s.rdb.Close() }

func key(tempo game.Tempo, mode game.ModeID) string {
	return "winlist:" + string(tempo) + ":" + strings.ToLower(string(mode))
}

func member(e types.WinlistEntry) string {
	if e.Team {
		return "t:" + e.Name
	}
	return "p:" + e.Name
}

func parseMember(m string) types.WinlistEntry {
	switch {
	case strings.HasPrefix(m, "t:"):
		return types.WinlistEntry{Team: true, Name: m[2:]}
	case strings.HasPrefix(m, "p:"):
		return types.WinlistEntry{Name: m[2:]}
	default:
		return types.WinlistEntry{Name: m}
	}
}

// Scores turns a ranking into win-list points. A team is scored once, at
// the place of its best player. Games with fewer than two ranked players
// score nothing.
func Scores(ranking game.Ranking) []types.WinlistEntry {
	if len(ranking) < 2 {
		return nil
	}
	var out []types.WinlistEntry
	seen := make(map[string]bool)
	for _, st := range ranking {
		e := types.WinlistEntry{Name: st.Player.Name}
		if st.Player.Team != "" {
			e = types.WinlistEntry{Team: true, Name: st.Player.Team}
		}
		if seen[member(e)] {
			continue
		}
		seen[member(e)] = true
		if len(seen) > len(Points) {
			break
		}
		e.Score = Points[len(seen)-1]
		out = append(out, e)
	}
	if len(seen) < 2 {
		return nil
	}
	return out
}

// Record adds the points of a finished game.
func (s *Service) Record(ctx context.Context, tempo game.Tempo, mode game.ModeID, ranking game.Ranking) error {
	scores := Scores(ranking)
	if len(scores) == 0 {
		return nil
	}
	k := key(tempo, mode)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, e := range scores {
			p.ZIncrBy(ctx, k, float64(e.Score), member(e))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record winlist %s: %w", k, err)
	}
	return nil
}

// Top returns the n best entries, highest score first.
func (s *Service) Top(ctx context.Context, tempo game.Tempo, mode game.ModeID, n int) ([]types.WinlistEntry, error) {
	if n <= 0 {
		n = DefaultTop
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key(tempo, mode), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read winlist: %w", err)
	}
	out := make([]types.WinlistEntry, 0, len(zs))
	for _, z := range zs {
		name, _ := z.Member.(string)
		e := parseMember(name)
		e.Score = int64(z.Score)
		out = append(out, e)
	}
	return out, nil
}
