package game

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tenorite/tenorite-server/internal/field"
	"github.com/tenorite/tenorite-server/internal/protocol"
)

// Recorder keeps the timeline of one running match. It is not safe for
// concurrent use; the owning channel session drives it from its own loop.
type Recorder struct {
	id    string
	tempo Tempo
	mode  ModeID
	rules Rules
	now   func() time.Time

	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	paused      bool
	stopped     bool

	roster   []Player
	starting map[int]Player
	alive    map[int]Player // leavers and losers are removed

	messages []TimedMessage
	fields   map[int]field.Field
}

type RecorderOption func(*Recorder)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(tempo Tempo, mode Mode, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		id:    uuid.NewString(),
		tempo: tempo,
		mode:  mode.ID,
		rules: mode.Rules,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start snapshots the roster and starts the clock. The returned rules are
// the ones in effect for the whole match.
func (r *Recorder) Start(roster []Player) Rules {
	r.roster = slices.Clone(roster)
	slices.SortFunc(r.roster, func(a, b Player) int { return a.Slot - b.Slot })

	r.starting = make(map[int]Player, len(r.roster))
	r.alive = make(map[int]Player, len(r.roster))
	for _, p := range r.roster {
		r.starting[p.Slot] = p
		r.alive[p.Slot] = p
	}
	r.fields = make(map[int]field.Field)
	r.startedAt = r.now()
	return r.rules
}

func (r *Recorder) ID() string   { return r.id }
func (r *Recorder) Paused() bool { return r.paused }

func (r *Recorder) elapsed() time.Duration {
	end := r.now()
	if r.paused {
		end = r.pausedAt
	}
	return end.Sub(r.startedAt) - r.pausedTotal
}

func (r *Recorder) record(m protocol.Message) {
	r.messages = append(r.messages, TimedMessage{Elapsed: r.elapsed(), Message: m})
}

func (r *Recorder) OnField(m protocol.Field) {
	if r.stopped {
		return
	}
	r.record(m)
	if _, ok := r.starting[m.Sender]; ok {
		r.fields[m.Sender] = r.fields[m.Sender].Apply(m.Update)
	}
}

func (r *Recorder) OnSpecialBlock(m protocol.SpecialBlock) {
	if r.stopped {
		return
	}
	r.record(m)
}

// OnClassicAdd records a classic-style line add. It reports false, and
// records nothing, when the rules do not allow one from this sender.
func (r *Recorder) OnClassicAdd(m protocol.ClassicAdd) bool {
	if r.stopped || (!r.rules.ClassicRules && m.Sender != protocol.ServerSlot) {
		return false
	}
	r.record(m)
	return true
}

func (r *Recorder) OnLevel(m protocol.Lvl) {
	if r.stopped {
		return
	}
	r.record(m)
}

// OnPlayerLeave removes the player from the match. The game is finished
// once the remaining players are all on one side.
func (r *Recorder) OnPlayerLeave(slot int) (*RecordedGame, bool) {
	if r.stopped {
		return nil, false
	}
	delete(r.alive, slot)
	r.record(protocol.PlayerLeave{Sender: slot})
	if oneSideLeft(r.alive) {
		return r.finish(), true
	}
	return nil, false
}

// OnPlayerLost marks the player as out. The game is finished once the
// players still alive are all on one side.
func (r *Recorder) OnPlayerLost(slot int) (*RecordedGame, bool) {
	if r.stopped {
		return nil, false
	}
	r.record(protocol.PlayerLost{Sender: slot})
	delete(r.alive, slot)
	if oneSideLeft(r.alive) {
		return r.finish(), true
	}
	return nil, false
}

// OnPlayerWon always finishes the game.
func (r *Recorder) OnPlayerWon(slot int) *RecordedGame {
	if r.stopped {
		return nil
	}
	r.record(protocol.PlayerWon{Sender: slot})
	return r.finish()
}

func (r *Recorder) Pause() bool {
	if r.stopped || r.paused {
		return false
	}
	r.pausedAt = r.now()
	r.paused = true
	return true
}

func (r *Recorder) Resume() bool {
	if r.stopped || !r.paused {
		return false
	}
	r.pausedTotal += r.now().Sub(r.pausedAt)
	r.paused = false
	return true
}

// Field returns the tracked field of a slot, if an update was ever seen.
func (r *Recorder) Field(slot int) (field.Field, bool) {
	f, ok := r.fields[slot]
	return f, ok
}

func (r *Recorder) Stop() {
	if r.stopped {
		return
	}
	r.stopped = true
	r.paused = false
	r.messages = nil
	r.fields = nil
}

func (r *Recorder) finish() *RecordedGame {
	return &RecordedGame{
		ID:       r.id,
		Started:  r.startedAt,
		Duration: r.elapsed(),
		Tempo:    r.tempo,
		Mode:     r.mode,
		Rules:    r.rules,
		Players:  slices.Clone(r.roster),
		Messages: slices.Clone(r.messages),
	}
}
