// Package channel runs one game room: its player slots, message routing and
// the recorder of the running game.
package channel

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tenorite/tenorite-server/internal/events"
	"github.com/tenorite/tenorite-server/internal/field"
	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/obslog"
	"github.com/tenorite/tenorite-server/internal/protocol"
	"github.com/tenorite/tenorite-server/pkg/types"
)

const DefaultIdleTimeout = 10 * time.Minute

type Config struct {
	Tempo game.Tempo
	Mode  game.Mode
	Name  string
	// Ephemeral sessions close themselves after IdleTimeout without players.
	Ephemeral   bool
	IdleTimeout time.Duration
	Bus         events.Bus
	// OnClose is called from the session goroutine once it has stopped.
	OnClose func(*Session)
	// Placeholder is shown for players whose field was never seen.
	Placeholder func() field.Field
	// RecorderOptions are passed to every game recorder.
	RecorderOptions []game.RecorderOption
}

type slot struct {
	number    int
	name      string
	team      string
	endpoint  Endpoint
	stopWatch func()
}

type Session struct {
	cfg    Config
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *zap.Logger

	// closed is set under the write lock once the inbox is drained for the
	// last time; Send holds the read lock while enqueueing.
	sendMu sync.RWMutex
	closed bool

	pool      *SlotPool
	pending   map[Endpoint]*slot
	slots     map[int]*slot
	endpoints map[Endpoint]int
	recorder  *game.Recorder
	winlist   []types.WinlistEntry

	idleTimer *time.Timer
	idleGen   int
}

func NewSession(parent context.Context, cfg Config) *Session {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Placeholder == nil {
		cfg.Placeholder = field.FilledPlaceholder
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		cfg:       cfg,
		inbox:     make(chan Msg, 64),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		log:       obslog.L().With(zap.String("tempo", string(cfg.Tempo)), zap.String("channel", cfg.Name)),
		pool:      NewSlotPool(MaxSlots),
		pending:   make(map[Endpoint]*slot),
		slots:     make(map[int]*slot),
		endpoints: make(map[Endpoint]int),
	}

	go s.loop()
	return s
}

func (s *Session) Name() string          { return s.cfg.Name }
func (s *Session) Tempo() game.Tempo     { return s.cfg.Tempo }
func (s *Session) Mode() game.Mode       { return s.cfg.Mode }
func (s *Session) Done() <-chan struct{} { return s.done }

// Inbox exposes the raw inbox. Prefer Send, which gives up once the session
// has stopped.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Send enqueues m and reports false if the session has already stopped.
func (s *Session) Send(m Msg) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed || s.ctx.Err() != nil {
		return false
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) loop() {
	s.checkIdle()
	for {
		select {
		case <-s.ctx.Done():
			s.terminate()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case ReserveSlot:
				s.reserve(msg.Endpoint, msg.Name)

			case ConfirmSlot:
				s.confirm(msg.Endpoint)

			case LeaveChannel:
				s.leave(msg.Endpoint, false)

			case disconnected:
				s.leave(msg.Endpoint, true)

			case FromClient:
				n, ok := s.endpoints[msg.Endpoint]
				if !ok {
					s.log.Debug("message_without_slot", zap.String("kind", string(msg.Message.Kind())))
					break
				}
				if sender, ok := protocol.SenderOf(msg.Message); ok && sender != n {
					s.log.Debug("sender_mismatch", zap.Int("slot", n), zap.Int("sender", sender))
					break
				}
				s.route(s.slots[n], msg.Message)

			case Inject:
				s.route(nil, msg.Message)

			case ListChannels:
				select {
				case msg.Reply <- s.info():
				default:
				}

			case WinlistUpdated:
				if msg.Tempo == s.cfg.Tempo && msg.Mode == s.cfg.Mode.ID {
					s.winlist = msg.Entries
					s.broadcast(winlistMessage(msg.Entries))
				}

			case GetState:
				msg.Reply <- s.view()

			case closeIdle:
				if msg.gen == s.idleGen && s.idle() {
					s.log.Info("channel_idle_closed")
					s.terminate()
					return
				}

			case Shutdown:
				s.terminate()
				return
			}
			s.checkIdle()
		}
	}
}

func (s *Session) reserve(ep Endpoint, name string) {
	if _, ok := s.pending[ep]; ok {
		return
	}
	if _, ok := s.endpoints[ep]; ok {
		return
	}
	if len(s.slots)+len(s.pending) >= MaxSlots {
		ep.Notify(SlotReservationFailed{Channel: s.cfg.Name, Reason: ErrChannelFull})
		return
	}
	s.pending[ep] = &slot{
		number:    s.pool.Acquire(),
		name:      name,
		endpoint:  ep,
		stopWatch: s.watch(ep),
	}
	ep.Notify(SlotReserved{Session: s})
}

func (s *Session) confirm(ep Endpoint) {
	joining, ok := s.pending[ep]
	if !ok {
		return
	}
	delete(s.pending, ep)

	existing := s.sortedSlots()

	ep.Send(protocol.PlayerNum{Slot: joining.number})
	for _, sl := range existing {
		sl.endpoint.Send(protocol.PlayerJoin{Slot: joining.number, Name: joining.name})
	}
	for _, sl := range existing {
		ep.Send(protocol.PlayerJoin{Slot: sl.number, Name: sl.name})
		ep.Send(protocol.Team{Sender: sl.number, Team: sl.team})
	}
	for _, line := range welcome(joining.name, s.cfg.Name) {
		ep.Send(server(line))
	}
	if len(s.winlist) > 0 {
		ep.Send(winlistMessage(s.winlist))
	}

	if s.recorder != nil {
		ep.Send(protocol.Ingame{})
		if s.recorder.Paused() {
			ep.Send(protocol.GamePaused{})
		} else {
			ep.Send(protocol.GameRunning{})
		}
		everyone := append(existing, joining)
		slices.SortFunc(everyone, bySlot)
		for _, sl := range everyone {
			f, ok := s.recorder.Field(sl.number)
			if !ok {
				f = s.cfg.Placeholder()
			}
			ep.Send(protocol.Field{Sender: sl.number, Update: f.String()})
		}
	}

	s.publish(events.ChannelJoined{
		Tempo:   s.cfg.Tempo,
		Mode:    s.cfg.Mode.ID,
		Channel: s.cfg.Name,
		Slot:    joining.number,
		Name:    joining.name,
	})

	s.slots[joining.number] = joining
	s.endpoints[ep] = joining.number
	s.log.Info("channel_joined", zap.Int("slot", joining.number), zap.String("name", joining.name))
}

func (s *Session) leave(ep Endpoint, disconnected bool) {
	if p, ok := s.pending[ep]; ok {
		delete(s.pending, ep)
		s.pool.Release(p.number)
		if !disconnected {
			p.stopWatch()
			ep.Notify(ChannelLeft{Session: s})
		}
		return
	}

	n, ok := s.endpoints[ep]
	if !ok {
		return
	}
	leaving := s.slots[n]

	if !disconnected {
		for _, sl := range s.sortedSlots() {
			if sl.number != n {
				ep.Send(protocol.PlayerLeave{Sender: sl.number})
			}
		}
	}

	s.pool.Release(n)
	delete(s.slots, n)
	delete(s.endpoints, ep)
	s.broadcast(protocol.PlayerLeave{Sender: n})

	if s.recorder != nil {
		ep.Send(protocol.EndGame{})
		if g, finished := s.recorder.OnPlayerLeave(n); finished {
			s.endGame(g)
		}
	}

	s.publish(events.ChannelLeft{
		Tempo:   s.cfg.Tempo,
		Mode:    s.cfg.Mode.ID,
		Channel: s.cfg.Name,
		Slot:    n,
		Name:    leaving.name,
	})
	s.log.Info("channel_left", zap.Int("slot", n), zap.Bool("disconnected", disconnected))

	if !disconnected {
		leaving.stopWatch()
		ep.Notify(ChannelLeft{Session: s})
	}
}

// route handles a gameplay or chat message. from is nil for messages the
// server injects.
func (s *Session) route(from *slot, m protocol.Message) {
	sender := protocol.ServerSlot
	moderator := "server"
	if from != nil {
		sender = from.number
		moderator = from.name
	}

	switch msg := m.(type) {
	case protocol.Pline, protocol.PlineAct:
		s.broadcastExcept(sender, msg)

	case protocol.Gmsg:
		if s.recorder != nil {
			s.broadcast(msg)
		}

	case protocol.Team:
		if from != nil {
			from.team = msg.Team
		}
		s.broadcastExcept(sender, msg)

	case protocol.StartGame:
		if s.recorder != nil {
			s.reply(from, "<red>game is already running!</red>")
			return
		}
		s.recorder = game.NewRecorder(s.cfg.Tempo, s.cfg.Mode, s.cfg.RecorderOptions...)
		rules := s.recorder.Start(s.roster())
		s.broadcast(protocol.NewGame{Rules: rules.String()})
		s.broadcast(server(fmt.Sprintf("<i>game started by <b>%s</b></i>", moderator)))
		s.log.Info("game_started", zap.String("game", s.recorder.ID()), zap.Int("players", len(s.slots)))

	case protocol.StopGame:
		if s.recorder == nil {
			s.reply(from, "<red>no running game is available!</red>")
			return
		}
		s.recorder.Stop()
		s.recorder = nil
		s.broadcast(protocol.EndGame{})
		s.broadcast(server(fmt.Sprintf("<i>game stopped by <b>%s</b></i>", moderator)))
		s.log.Info("game_stopped")

	case protocol.PauseGame:
		if s.recorder == nil {
			s.reply(from, "<red>no running game is available!</red>")
			return
		}
		if !s.recorder.Pause() {
			s.reply(from, "<red>no running game is available!</red>")
			return
		}
		s.broadcast(protocol.GamePaused{})
		s.broadcast(server(fmt.Sprintf("<i>game paused by <b>%s</b></i>", moderator)))

	case protocol.ResumeGame:
		if s.recorder == nil || !s.recorder.Paused() {
			s.reply(from, "<red>no paused game is available!</red>")
			return
		}
		s.recorder.Resume()
		s.broadcast(protocol.GameRunning{})
		s.broadcast(server(fmt.Sprintf("<i>game resumed by <b>%s</b></i>", moderator)))

	case protocol.Lvl:
		if s.recorder == nil {
			return
		}
		s.recorder.OnLevel(msg)
		s.broadcast(msg)

	case protocol.Field:
		if s.recorder == nil {
			return
		}
		s.recorder.OnField(msg)
		s.forward(sender, msg.Server, msg)

	case protocol.SpecialBlock:
		if s.recorder == nil {
			return
		}
		s.recorder.OnSpecialBlock(msg)
		s.forward(sender, msg.Server, msg)

	case protocol.ClassicAdd:
		if s.recorder == nil || !s.recorder.OnClassicAdd(msg) {
			return
		}
		s.forward(sender, msg.Sender == protocol.ServerSlot, msg)

	case protocol.PlayerLost:
		if s.recorder == nil {
			return
		}
		s.broadcast(msg)
		if g, finished := s.recorder.OnPlayerLost(msg.Sender); finished {
			s.endGame(g)
		}

	case protocol.PlayerWon:
		if s.recorder == nil {
			return
		}
		s.endGame(s.recorder.OnPlayerWon(msg.Sender))

	default:
		s.log.Debug("message_dropped", zap.String("kind", string(m.Kind())))
	}
}

func (s *Session) endGame(g *game.RecordedGame) {
	s.recorder = nil
	s.broadcast(protocol.EndGame{})

	ranking := g.Ranking()
	if len(ranking) == 0 {
		return
	}
	for _, line := range StatsLines(ranking, g.Duration) {
		s.broadcast(server(line))
	}
	s.publish(events.GameFinished{
		Tempo:   s.cfg.Tempo,
		Mode:    s.cfg.Mode.ID,
		Channel: s.cfg.Name,
		Game:    g,
		Ranking: ranking,
	})
	if len(ranking) > 1 {
		s.broadcast(protocol.PlayerWon{Sender: ranking[0].Player.Slot})
	}
	s.log.Info("game_finished", zap.String("game", g.ID), zap.Duration("duration", g.Duration))
}

// watch turns loss of the endpoint into a disconnected message. The
// returned func stops watching.
func (s *Session) watch(ep Endpoint) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ep.Done():
			s.Send(disconnected{Endpoint: ep})
		case <-stop:
		case <-s.ctx.Done():
		}
	}()
	var stopped bool
	return func() {
		if !stopped {
			stopped = true
			close(stop)
		}
	}
}

func (s *Session) idle() bool {
	return len(s.slots) == 0 && len(s.pending) == 0
}

func (s *Session) checkIdle() {
	if !s.cfg.Ephemeral {
		return
	}
	switch {
	case s.idle() && s.idleTimer == nil:
		s.idleGen++
		gen := s.idleGen
		s.idleTimer = time.AfterFunc(s.cfg.IdleTimeout, func() { s.Send(closeIdle{gen: gen}) })
	case !s.idle() && s.idleTimer != nil:
		s.idleTimer.Stop()
		s.idleTimer = nil
		s.idleGen++
	}
}

func (s *Session) terminate() {
	if s.recorder != nil {
		s.recorder.Stop()
		s.recorder = nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	for _, sl := range s.sortedSlots() {
		sl.endpoint.Send(server("<red><b>WOOPS!</b> Something went wrong, please try again later</red>"))
		sl.endpoint.Notify(ChannelClosed{Session: s})
		sl.stopWatch()
	}
	for ep, p := range s.pending {
		ep.Notify(ChannelClosed{Session: s})
		p.stopWatch()
	}
	s.cancel()
	s.sendMu.Lock()
	s.closed = true
	s.sendMu.Unlock()

	// answer reservations that raced with the shutdown
	for {
		select {
		case m := <-s.inbox:
			if r, ok := m.(ReserveSlot); ok {
				r.Endpoint.Notify(SlotReservationFailed{Channel: s.cfg.Name, Reason: ErrChannelNotAvailable})
			}
			continue
		default:
		}
		break
	}

	close(s.done)
	if s.cfg.OnClose != nil {
		s.cfg.OnClose(s)
	}
}

func (s *Session) publish(e events.Event) {
	if s.cfg.Bus == nil {
		return
	}
	if err := s.cfg.Bus.Publish(s.ctx, e); err != nil {
		s.log.Warn("publish_failed", zap.String("event", string(e.Kind())), zap.Error(err))
	}
}

func (s *Session) reply(to *slot, text string) {
	if to != nil {
		to.endpoint.Send(server(text))
	}
}

func (s *Session) broadcast(m protocol.Message) {
	for _, sl := range s.slots {
		sl.endpoint.Send(m)
	}
}

func (s *Session) broadcastExcept(number int, m protocol.Message) {
	for n, sl := range s.slots {
		if n != number {
			sl.endpoint.Send(m)
		}
	}
}

// forward sends gameplay to everyone but its sender; server-originated
// messages go to every slot.
func (s *Session) forward(sender int, fromServer bool, m protocol.Message) {
	if fromServer {
		s.broadcast(m)
		return
	}
	s.broadcastExcept(sender, m)
}

func (s *Session) sortedSlots() []*slot {
	out := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl)
	}
	slices.SortFunc(out, bySlot)
	return out
}

func (s *Session) roster() []game.Player {
	sorted := s.sortedSlots()
	out := make([]game.Player, 0, len(sorted))
	for _, sl := range sorted {
		out = append(out, game.Player{Slot: sl.number, Name: sl.name, Team: sl.team})
	}
	return out
}

func (s *Session) info() types.ChannelInfo {
	return types.ChannelInfo{
		Tempo:   string(s.cfg.Tempo),
		Mode:    string(s.cfg.Mode.ID),
		Name:    s.cfg.Name,
		Players: len(s.slots),
		Max:     MaxSlots,
	}
}

func (s *Session) view() View {
	v := View{
		Name:      s.cfg.Name,
		Free:      s.pool.Free(),
		Running:   s.recorder != nil,
		Paused:    s.recorder != nil && s.recorder.Paused(),
		IdleArmed: s.idleTimer != nil,
	}
	for _, sl := range s.sortedSlots() {
		v.Slots = append(v.Slots, SlotView{Slot: sl.number, Name: sl.name, Team: sl.team})
	}
	for _, p := range s.pending {
		v.Pending = append(v.Pending, p.number)
	}
	slices.Sort(v.Pending)
	return v
}

func bySlot(a, b *slot) int { return cmp.Compare(a.number, b.number) }

func server(text string) protocol.Pline {
	return protocol.Pline{Sender: protocol.ServerSlot, Text: text}
}

func welcome(name, channel string) []string {
	return []string{
		"",
		fmt.Sprintf("Hello <b>%s</b>, welcome in channel <b>%s</b>", name, channel),
		"",
	}
}

func winlistMessage(entries []types.WinlistEntry) protocol.Winlist {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		prefix := "p"
		if e.Team {
			prefix = "t"
		}
		out = append(out, fmt.Sprintf("%s%s;%d", prefix, e.Name, e.Score))
	}
	return protocol.Winlist{Entries: out}
}
