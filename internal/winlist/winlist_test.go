package winlist

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, err := NewFromURL(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ranked(players ...game.Player) game.Ranking {
	out := make(game.Ranking, 0, len(players))
	for _, p := range players {
		out = append(out, game.NewPlayingStats(p, time.Minute, 1, 0, 0, 0, 0, 0, 0, 0, nil, nil, nil, nil))
	}
	return out
}

func TestScores(t *testing.T) {
	cases := []struct {
		name    string
		ranking game.Ranking
		want    []types.WinlistEntry
	}{
		{
			name:    "single player",
			ranking: ranked(game.Player{Slot: 1, Name: "alice"}),
		},
		{
			name: "free for all",
			ranking: ranked(
				game.Player{Slot: 1, Name: "alice"},
				game.Player{Slot: 2, Name: "bob"},
				game.Player{Slot: 3, Name: "carol"},
				game.Player{Slot: 4, Name: "dave"},
			),
			want: []types.WinlistEntry{{Name: "alice", Score: 3}, {Name: "bob", Score: 2}, {Name: "carol", Score: 1}},
		},
		{
			name: "team scored once",
			ranking: ranked(
				game.Player{Slot: 1, Name: "alice", Team: "red"},
				game.Player{Slot: 3, Name: "carol"},
				game.Player{Slot: 2, Name: "bob", Team: "red"},
			),
			want: []types.WinlistEntry{{Team: true, Name: "red", Score: 3}, {Name: "carol", Score: 2}},
		},
		{
			name: "one team only",
			ranking: ranked(
				game.Player{Slot: 1, Name: "alice", Team: "red"},
				game.Player{Slot: 2, Name: "bob", Team: "red"},
			),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Scores(tc.ranking))
		})
	}
}

func TestRecordAndTop(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice := game.Player{Slot: 1, Name: "alice"}
	bob := game.Player{Slot: 2, Name: "bob"}
	red := game.Player{Slot: 3, Name: "carol", Team: "red"}

	require.NoError(t, s.Record(ctx, game.TempoNormal, game.Classic, ranked(alice, bob)))
	require.NoError(t, s.Record(ctx, game.TempoNormal, game.Classic, ranked(bob, alice, red)))
	require.NoError(t, s.Record(ctx, game.TempoFast, game.Classic, ranked(red, bob)))

	top, err := s.Top(ctx, game.TempoNormal, game.Classic, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.WinlistEntry{
		{Name: "bob", Score: 5},
		{Name: "alice", Score: 5},
		{Team: true, Name: "red", Score: 1},
	}, top)

	top, err = s.Top(ctx, game.TempoNormal, game.Classic, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	top, err = s.Top(ctx, game.TempoFast, game.SticksAndSquares, 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}
