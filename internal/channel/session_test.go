package channel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenorite/tenorite-server/internal/events"
	"github.com/tenorite/tenorite-server/internal/field"
	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/protocol"
	"github.com/tenorite/tenorite-server/pkg/types"
)

const within = 500 * time.Millisecond

type fakeEndpoint struct {
	msgs    chan protocol.Message
	notices chan Notice
	done    chan struct{}
}

func newEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		msgs:    make(chan protocol.Message, 256),
		notices: make(chan Notice, 16),
		done:    make(chan struct{}),
	}
}

func (e *fakeEndpoint) Send(m protocol.Message) { e.msgs <- m }
func (e *fakeEndpoint) Notify(n Notice)         { e.notices <- n }
func (e *fakeEndpoint) Done() <-chan struct{}   { return e.done }

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ep *fakeEndpoint) protocol.Message {
	t.Helper()
	select {
	case m := <-ep.msgs:
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return nil
	}
}

func recvNoMsg(t *testing.T, ep *fakeEndpoint, wait time.Duration) {
	t.Helper()
	select {
	case m := <-ep.msgs:
		t.Fatalf("expected no message within %v, got %#v", wait, m)
	case <-time.After(wait):
	}
}

func recvNotice(t *testing.T, ep *fakeEndpoint) Notice {
	t.Helper()
	select {
	case n := <-ep.notices:
		return n
	case <-time.After(within):
		t.Fatalf("timed out waiting for notice")
		return nil
	}
}

func recvNoNotice(t *testing.T, ep *fakeEndpoint, wait time.Duration) {
	t.Helper()
	select {
	case n := <-ep.notices:
		t.Fatalf("expected no notice within %v, got %#v", wait, n)
	case <-time.After(wait):
	}
}

func expectMsgs(t *testing.T, ep *fakeEndpoint, want ...protocol.Message) {
	t.Helper()
	for i, w := range want {
		assert.Equal(t, w, recvMsg(t, ep), "message %d", i)
	}
}

// recvUntil drops messages until one matches.
func recvUntil(t *testing.T, ep *fakeEndpoint, match func(protocol.Message) bool) protocol.Message {
	t.Helper()
	for {
		if m := recvMsg(t, ep); match(m) {
			return m
		}
	}
}

func drain(ep *fakeEndpoint) {
	for {
		select {
		case <-ep.msgs:
		default:
			return
		}
	}
}

func state(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	require.True(t, s.Send(GetState{Reply: reply}))
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

func newTestSession(t *testing.T, mutate ...func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		Tempo:       game.TempoNormal,
		Mode:        mustMode(t, "classic"),
		Name:        "classic",
		Placeholder: func() field.Field { return field.Of("&8G") },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewSession(ctx, cfg)
}

func mustMode(t *testing.T, id string) game.Mode {
	t.Helper()
	m, err := game.FindMode(id)
	require.NoError(t, err)
	return m
}

func reserve(t *testing.T, s *Session, name string) *fakeEndpoint {
	t.Helper()
	ep := newEndpoint()
	s.Send(ReserveSlot{Endpoint: ep, Name: name})
	n := recvNotice(t, ep)
	require.IsType(t, SlotReserved{}, n)
	assert.Same(t, s, n.(SlotReserved).Session)
	return ep
}

func join(t *testing.T, s *Session, name string) *fakeEndpoint {
	t.Helper()
	ep := reserve(t, s, name)
	s.Send(ConfirmSlot{Endpoint: ep})
	recvUntil(t, ep, func(m protocol.Message) bool {
		pl, ok := m.(protocol.Pline)
		return ok && strings.Contains(pl.Text, "welcome in channel")
	})
	recvMsg(t, ep) // trailing blank line
	return ep
}

func TestConfirmSlot_SendsRosterInOrder(t *testing.T) {
	s := newTestSession(t)

	alice := reserve(t, s, "alice")
	s.Send(ConfirmSlot{Endpoint: alice})
	expectMsgs(t, alice,
		protocol.PlayerNum{Slot: 1},
		server(""),
		server("Hello <b>alice</b>, welcome in channel <b>classic</b>"),
		server(""),
	)

	s.Send(FromClient{Endpoint: alice, Message: protocol.Team{Sender: 1, Team: "red"}})

	bob := reserve(t, s, "bob")
	s.Send(ConfirmSlot{Endpoint: bob})
	expectMsgs(t, bob,
		protocol.PlayerNum{Slot: 2},
		protocol.PlayerJoin{Slot: 1, Name: "alice"},
		protocol.Team{Sender: 1, Team: "red"},
		server(""),
		server("Hello <b>bob</b>, welcome in channel <b>classic</b>"),
		server(""),
	)
	expectMsgs(t, alice, protocol.PlayerJoin{Slot: 2, Name: "bob"})

	v := state(t, s)
	assert.Equal(t, []SlotView{{Slot: 1, Name: "alice", Team: "red"}, {Slot: 2, Name: "bob"}}, v.Slots)
	assert.Empty(t, v.Pending)
}

func TestReserveSlot_FullChannel(t *testing.T) {
	s := newTestSession(t)
	for i := 0; i < MaxSlots; i++ {
		reserve(t, s, "p")
	}

	late := newEndpoint()
	s.Send(ReserveSlot{Endpoint: late, Name: "late"})
	n := recvNotice(t, late)
	require.IsType(t, SlotReservationFailed{}, n)
	assert.ErrorIs(t, n.(SlotReservationFailed).Reason, ErrChannelFull)

	v := state(t, s)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, v.Pending)
	assert.Empty(t, v.Free)
}

func TestReserveSlot_DuplicateIsIgnored(t *testing.T) {
	s := newTestSession(t)
	ep := reserve(t, s, "alice")
	s.Send(ReserveSlot{Endpoint: ep, Name: "alice"})
	recvNoNotice(t, ep, 50*time.Millisecond)
	assert.Equal(t, []int{1}, state(t, s).Pending)
}

func TestReleasedSlotsReusedLowestFirst(t *testing.T) {
	s := newTestSession(t)
	eps := make([]*fakeEndpoint, 4)
	for i := range eps {
		eps[i] = reserve(t, s, "p")
	}

	s.Send(LeaveChannel{Endpoint: eps[2]})
	assert.IsType(t, ChannelLeft{}, recvNotice(t, eps[2]))
	s.Send(LeaveChannel{Endpoint: eps[0]})
	assert.IsType(t, ChannelLeft{}, recvNotice(t, eps[0]))

	first := reserve(t, s, "first")
	s.Send(ConfirmSlot{Endpoint: first})
	assert.Equal(t, protocol.PlayerNum{Slot: 1}, recvMsg(t, first))

	second := reserve(t, s, "second")
	s.Send(ConfirmSlot{Endpoint: second})
	assert.Equal(t, protocol.PlayerNum{Slot: 3}, recvMsg(t, second))
}

func TestLeaveChannel_ClearsRosterOfLeaver(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	carol := join(t, s, "carol")
	drain(alice)
	drain(bob)

	s.Send(LeaveChannel{Endpoint: bob})
	expectMsgs(t, bob, protocol.PlayerLeave{Sender: 1}, protocol.PlayerLeave{Sender: 3})
	assert.Equal(t, ChannelLeft{Session: s}, recvNotice(t, bob))

	expectMsgs(t, alice, protocol.PlayerLeave{Sender: 2})
	expectMsgs(t, carol, protocol.PlayerLeave{Sender: 2})
	assert.Equal(t, []int{2, 4, 5, 6}, state(t, s).Free)
}

func TestDisconnect_ActsLikeLeave(t *testing.T) {
	bus := events.NewLocalBus()
	t.Cleanup(func() { bus.Close() })
	got := make(chan events.Event, 8)
	_, err := bus.Subscribe(func(e events.Event) { got <- e })
	require.NoError(t, err)

	s := newTestSession(t, func(c *Config) { c.Bus = bus })
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)

	close(bob.done)
	expectMsgs(t, alice, protocol.PlayerLeave{Sender: 2})
	recvNoMsg(t, bob, 50*time.Millisecond)
	recvNoNotice(t, bob, 10*time.Millisecond)

	want := []events.Event{
		events.ChannelJoined{Tempo: game.TempoNormal, Mode: game.Classic, Channel: "classic", Slot: 1, Name: "alice"},
		events.ChannelJoined{Tempo: game.TempoNormal, Mode: game.Classic, Channel: "classic", Slot: 2, Name: "bob"},
		events.ChannelLeft{Tempo: game.TempoNormal, Mode: game.Classic, Channel: "classic", Slot: 2, Name: "bob"},
	}
	for _, w := range want {
		select {
		case e := <-got:
			assert.Equal(t, w, e)
		case <-time.After(within):
			t.Fatalf("timed out waiting for %T", w)
		}
	}
}

func TestDisconnect_ReleasesPendingReservation(t *testing.T) {
	s := newTestSession(t)
	ep := reserve(t, s, "alice")
	close(ep.done)

	require.Eventually(t, func() bool { return len(state(t, s).Pending) == 0 }, time.Second, 10*time.Millisecond)
	assert.Len(t, state(t, s).Free, MaxSlots)
}

func TestFromClient_WrongSenderDropped(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)

	s.Send(FromClient{Endpoint: alice, Message: protocol.Pline{Sender: 2, Text: "i am bob"}})
	recvNoMsg(t, bob, 50*time.Millisecond)

	s.Send(FromClient{Endpoint: alice, Message: protocol.Pline{Sender: 1, Text: "hi"}})
	expectMsgs(t, bob, protocol.Pline{Sender: 1, Text: "hi"})
	recvNoMsg(t, alice, 20*time.Millisecond)
}

func TestGame_StartPlayFinish(t *testing.T) {
	bus := events.NewLocalBus()
	t.Cleanup(func() { bus.Close() })
	finished := make(chan events.GameFinished, 1)
	_, err := bus.Subscribe(func(e events.Event) {
		if gf, ok := e.(events.GameFinished); ok {
			finished <- gf
		}
	})
	require.NoError(t, err)

	s := newTestSession(t, func(c *Config) { c.Bus = bus })
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)

	rules := mustMode(t, "classic").Rules.String()
	s.Send(FromClient{Endpoint: alice, Message: protocol.StartGame{Sender: 1}})
	for _, ep := range []*fakeEndpoint{alice, bob} {
		expectMsgs(t, ep,
			protocol.NewGame{Rules: rules},
			server("<i>game started by <b>alice</b></i>"),
		)
	}

	s.Send(FromClient{Endpoint: bob, Message: protocol.StartGame{Sender: 2}})
	expectMsgs(t, bob, server("<red>game is already running!</red>"))

	s.Send(FromClient{Endpoint: alice, Message: protocol.Field{Sender: 1, Update: "&8G"}})
	expectMsgs(t, bob, protocol.Field{Sender: 1, Update: "&8G"})
	recvNoMsg(t, alice, 20*time.Millisecond)

	s.Send(FromClient{Endpoint: bob, Message: protocol.PlayerLost{Sender: 2}})
	for _, ep := range []*fakeEndpoint{alice, bob} {
		expectMsgs(t, ep, protocol.PlayerLost{Sender: 2}, protocol.EndGame{})
		for i := 0; i < 3; i++ {
			assert.IsType(t, protocol.Pline{}, recvMsg(t, ep))
		}
		expectMsgs(t, ep, protocol.PlayerWon{Sender: 1})
	}

	select {
	case gf := <-finished:
		assert.Equal(t, "classic", gf.Channel)
		require.Len(t, gf.Ranking, 2)
		assert.Equal(t, "alice", gf.Ranking[0].Player.Name)
		assert.Equal(t, 0, gf.Ranking[0].Blocks)
		assert.Len(t, gf.Game.Messages, 2)
	case <-time.After(within):
		t.Fatalf("timed out waiting for game finished")
	}
	assert.False(t, state(t, s).Running)
}

func TestGame_StopPauseResume(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)

	s.Send(FromClient{Endpoint: alice, Message: protocol.StopGame{Sender: 1}})
	expectMsgs(t, alice, server("<red>no running game is available!</red>"))
	s.Send(FromClient{Endpoint: alice, Message: protocol.PauseGame{Sender: 1}})
	expectMsgs(t, alice, server("<red>no running game is available!</red>"))

	s.Send(FromClient{Endpoint: alice, Message: protocol.StartGame{Sender: 1}})
	drain2(t, alice, bob, 2)

	s.Send(FromClient{Endpoint: bob, Message: protocol.ResumeGame{Sender: 2}})
	expectMsgs(t, bob, server("<red>no paused game is available!</red>"))

	s.Send(FromClient{Endpoint: bob, Message: protocol.PauseGame{Sender: 2}})
	for _, ep := range []*fakeEndpoint{alice, bob} {
		expectMsgs(t, ep, protocol.GamePaused{}, server("<i>game paused by <b>bob</b></i>"))
	}
	assert.True(t, state(t, s).Paused)

	s.Send(FromClient{Endpoint: alice, Message: protocol.PauseGame{Sender: 1}})
	expectMsgs(t, alice, server("<red>no running game is available!</red>"))
	recvNoMsg(t, bob, 30*time.Millisecond)
	assert.True(t, state(t, s).Paused)

	s.Send(FromClient{Endpoint: alice, Message: protocol.ResumeGame{Sender: 1}})
	for _, ep := range []*fakeEndpoint{alice, bob} {
		expectMsgs(t, ep, protocol.GameRunning{}, server("<i>game resumed by <b>alice</b></i>"))
	}

	s.Send(FromClient{Endpoint: alice, Message: protocol.StopGame{Sender: 1}})
	for _, ep := range []*fakeEndpoint{alice, bob} {
		expectMsgs(t, ep, protocol.EndGame{}, server("<i>game stopped by <b>alice</b></i>"))
	}
	assert.False(t, state(t, s).Running)
}

func TestRoute_GameplayMessages(t *testing.T) {
	noClassic := func(c *Config) { c.Mode.Rules.ClassicRules = false }

	cases := []struct {
		name      string
		mutate    []func(*Config)
		running   bool
		msg       protocol.Message
		wantAlice []protocol.Message
		wantBob   []protocol.Message
	}{
		{
			name:      "level goes to every slot",
			running:   true,
			msg:       protocol.Lvl{Sender: 1, Level: 3},
			wantAlice: []protocol.Message{protocol.Lvl{Sender: 1, Level: 3}},
			wantBob:   []protocol.Message{protocol.Lvl{Sender: 1, Level: 3}},
		},
		{
			name: "level dropped without a game",
			msg:  protocol.Lvl{Sender: 1, Level: 3},
		},
		{
			name:    "special skips its sender",
			running: true,
			msg:     protocol.SpecialBlock{Sender: 1, Target: 2, Special: protocol.NukeField},
			wantBob: []protocol.Message{protocol.SpecialBlock{Sender: 1, Target: 2, Special: protocol.NukeField}},
		},
		{
			name:    "classic add under classic rules",
			running: true,
			msg:     protocol.ClassicAdd{Sender: 1, Lines: 4},
			wantBob: []protocol.Message{protocol.ClassicAdd{Sender: 1, Lines: 4}},
		},
		{
			name:    "classic add dropped without classic rules",
			mutate:  []func(*Config){noClassic},
			running: true,
			msg:     protocol.ClassicAdd{Sender: 1, Lines: 4},
		},
		{
			name:      "game message while running",
			running:   true,
			msg:       protocol.Gmsg{Text: "gg"},
			wantAlice: []protocol.Message{protocol.Gmsg{Text: "gg"}},
			wantBob:   []protocol.Message{protocol.Gmsg{Text: "gg"}},
		},
		{
			name: "game message dropped without a game",
			msg:  protocol.Gmsg{Text: "gg"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSession(t, tc.mutate...)
			alice := join(t, s, "alice")
			bob := join(t, s, "bob")
			drain(alice)
			if tc.running {
				s.Send(FromClient{Endpoint: alice, Message: protocol.StartGame{Sender: 1}})
				drain2(t, alice, bob, 2)
			}

			s.Send(FromClient{Endpoint: alice, Message: tc.msg})
			expectMsgs(t, alice, tc.wantAlice...)
			expectMsgs(t, bob, tc.wantBob...)
			recvNoMsg(t, alice, 30*time.Millisecond)
			recvNoMsg(t, bob, 10*time.Millisecond)
			assert.Equal(t, tc.running, state(t, s).Running)
		})
	}
}

func TestRoute_PlayerWonEndsGame(t *testing.T) {
	bus := events.NewLocalBus()
	t.Cleanup(func() { bus.Close() })
	finished := make(chan events.GameFinished, 1)
	_, err := bus.Subscribe(func(e events.Event) {
		if gf, ok := e.(events.GameFinished); ok {
			finished <- gf
		}
	})
	require.NoError(t, err)

	s := newTestSession(t, func(c *Config) { c.Bus = bus })
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)
	s.Send(FromClient{Endpoint: alice, Message: protocol.StartGame{Sender: 1}})
	drain2(t, alice, bob, 2)

	s.Send(FromClient{Endpoint: bob, Message: protocol.PlayerWon{Sender: 2}})
	for _, ep := range []*fakeEndpoint{alice, bob} {
		expectMsgs(t, ep, protocol.EndGame{})
		for i := 0; i < 3; i++ {
			assert.IsType(t, protocol.Pline{}, recvMsg(t, ep))
		}
		assert.IsType(t, protocol.PlayerWon{}, recvMsg(t, ep))
	}
	assert.False(t, state(t, s).Running)

	select {
	case gf := <-finished:
		require.Len(t, gf.Game.Messages, 1)
		assert.Equal(t, protocol.PlayerWon{Sender: 2}, gf.Game.Messages[0].Message)
	case <-time.After(within):
		t.Fatalf("timed out waiting for game finished")
	}
}

func drain2(t *testing.T, a, b *fakeEndpoint, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		recvMsg(t, a)
		recvMsg(t, b)
	}
}

func TestConfirmSlot_DuringRunningGameSendsFields(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)

	s.Send(FromClient{Endpoint: alice, Message: protocol.StartGame{Sender: 1}})
	drain2(t, alice, bob, 2)
	s.Send(FromClient{Endpoint: alice, Message: protocol.Field{Sender: 1, Update: "&8G9G9H:H"}})
	recvMsg(t, bob)

	placeholder := field.Of("&8G").String()
	carol := reserve(t, s, "carol")
	s.Send(ConfirmSlot{Endpoint: carol})
	expectMsgs(t, carol,
		protocol.PlayerNum{Slot: 3},
		protocol.PlayerJoin{Slot: 1, Name: "alice"},
		protocol.Team{Sender: 1},
		protocol.PlayerJoin{Slot: 2, Name: "bob"},
		protocol.Team{Sender: 2},
		server(""),
		server("Hello <b>carol</b>, welcome in channel <b>classic</b>"),
		server(""),
		protocol.Ingame{},
		protocol.GameRunning{},
		protocol.Field{Sender: 1, Update: field.Of("&8G9G9H:H").String()},
		protocol.Field{Sender: 2, Update: placeholder},
		protocol.Field{Sender: 3, Update: placeholder},
	)
}

func TestLeave_LastOpponentEndsGame(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)

	s.Send(FromClient{Endpoint: alice, Message: protocol.StartGame{Sender: 1}})
	drain2(t, alice, bob, 2)

	s.Send(LeaveChannel{Endpoint: bob})
	expectMsgs(t, bob, protocol.PlayerLeave{Sender: 1}, protocol.EndGame{})
	assert.IsType(t, ChannelLeft{}, recvNotice(t, bob))

	expectMsgs(t, alice, protocol.PlayerLeave{Sender: 2}, protocol.EndGame{})
	stats := recvMsg(t, alice).(protocol.Pline)
	assert.Contains(t, stats.Text, "<b>alice</b>")
	total := recvMsg(t, alice).(protocol.Pline)
	assert.Contains(t, total.Text, "Total game time")
	recvNoMsg(t, alice, 30*time.Millisecond)
	assert.False(t, state(t, s).Running)
}

func TestInject_ServerFieldGoesToEveryone(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")
	bob := join(t, s, "bob")
	drain(alice)

	s.Send(FromClient{Endpoint: alice, Message: protocol.StartGame{Sender: 1}})
	drain2(t, alice, bob, 2)

	m := protocol.Field{Sender: 1, Update: "&8G", Server: true}
	s.Send(Inject{Message: m})
	expectMsgs(t, alice, m)
	expectMsgs(t, bob, m)

	add := protocol.ClassicAdd{Sender: 0, Lines: 2}
	s.Send(Inject{Message: add})
	expectMsgs(t, alice, add)
	expectMsgs(t, bob, add)
}

func TestListChannels(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "alice")
	reply := make(chan types.ChannelInfo, 1)
	s.Send(ListChannels{Reply: reply})
	select {
	case info := <-reply:
		assert.Equal(t, types.ChannelInfo{Tempo: "normal", Mode: "CLASSIC", Name: "classic", Players: 1, Max: MaxSlots}, info)
	case <-time.After(within):
		t.Fatalf("timed out waiting for listing")
	}
}

func TestWinlistUpdated_OnlyMatchingMode(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")

	entries := []types.WinlistEntry{{Name: "alice", Score: 3}, {Team: true, Name: "red", Score: 2}}
	s.Send(WinlistUpdated{Tempo: game.TempoNormal, Mode: game.SticksAndSquares, Entries: entries})
	recvNoMsg(t, alice, 30*time.Millisecond)

	s.Send(WinlistUpdated{Tempo: game.TempoNormal, Mode: game.Classic, Entries: entries})
	expectMsgs(t, alice, protocol.Winlist{Entries: []string{"palice;3", "tred;2"}})
}

func TestIdleEphemeralSessionCloses(t *testing.T) {
	closed := make(chan *Session, 1)
	s := newTestSession(t, func(c *Config) {
		c.Ephemeral = true
		c.IdleTimeout = 30 * time.Millisecond
		c.OnClose = func(s *Session) { closed <- s }
	})

	select {
	case got := <-closed:
		assert.Same(t, s, got)
	case <-time.After(time.Second):
		t.Fatalf("idle session did not close")
	}
	<-s.Done()
	assert.False(t, s.Send(GetState{Reply: make(chan View, 1)}))
}

func TestIdleTimerCancelledByJoin(t *testing.T) {
	s := newTestSession(t, func(c *Config) {
		c.Ephemeral = true
		c.IdleTimeout = 100 * time.Millisecond
	})
	reserve(t, s, "alice")
	assert.False(t, state(t, s).IdleArmed)

	select {
	case <-s.Done():
		t.Fatalf("session closed while a reservation was pending")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestPermanentSessionNeverIdles(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.IdleTimeout = 10 * time.Millisecond })
	time.Sleep(50 * time.Millisecond)
	v := state(t, s)
	assert.False(t, v.IdleArmed)
}

func TestShutdown_NotifiesSlots(t *testing.T) {
	s := newTestSession(t)
	alice := join(t, s, "alice")
	pending := reserve(t, s, "bob")

	s.Send(Shutdown{})
	expectMsgs(t, alice, server("<red><b>WOOPS!</b> Something went wrong, please try again later</red>"))
	assert.Equal(t, ChannelClosed{Session: s}, recvNotice(t, alice))
	assert.Equal(t, ChannelClosed{Session: s}, recvNotice(t, pending))

	select {
	case <-s.Done():
	case <-time.After(within):
		t.Fatalf("session did not stop")
	}
}

func TestShutdown_EveryAcceptedReservationIsAnswered(t *testing.T) {
	s := newTestSession(t)

	type attempt struct {
		ep       *fakeEndpoint
		accepted bool
	}
	const n = 40
	results := make(chan attempt, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			ep := newEndpoint()
			<-start
			results <- attempt{ep: ep, accepted: s.Send(ReserveSlot{Endpoint: ep, Name: "p"})}
		}()
	}
	close(start)
	s.Send(Shutdown{})

	for i := 0; i < n; i++ {
		a := <-results
		if a.accepted {
			recvNotice(t, a.ep)
		}
	}
	select {
	case <-s.Done():
	case <-time.After(within):
		t.Fatalf("session did not stop")
	}
	assert.False(t, s.Send(GetState{Reply: make(chan View, 1)}))
}

func TestStatsLines(t *testing.T) {
	ranking := game.Ranking{
		game.NewPlayingStats(game.Player{Slot: 1, Name: "alice"}, 30*time.Second, 4, 6, 1, 2, 3, 5, 9, 12, nil,
			map[protocol.Special]int{protocol.AddLine: 2}, nil, map[protocol.Special]int{protocol.Gravity: 1}),
	}
	lines := StatsLines(ranking, 30500*time.Millisecond)
	require.Len(t, lines, 2)
	assert.Equal(t, "<purple><b>alice</b></purple>: <aqua>12 blocks @ 24.00 bpm</aqua>; <blue>2/0/1 specials</blue>; 1/2/3 combos; lvl: 4, mxfh: 9", lines[0])
	assert.Equal(t, "<brown>Total game time: <black>30.50</black> seconds", lines[1])
}
