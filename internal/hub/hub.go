// Package hub is the directory of channel sessions, one namespace per tempo.
package hub

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tenorite/tenorite-server/internal/channel"
	"github.com/tenorite/tenorite-server/internal/events"
	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/obslog"
	"github.com/tenorite/tenorite-server/pkg/types"
)

var (
	ErrInvalidName = errors.New("invalid channel name")
	ErrNameInUse   = errors.New("channel name already in use")
	ErrStopped     = errors.New("hub stopped")
)

var validName = regexp.MustCompile(`^[a-z0-9:_-]{2,25}$`)

const DefaultListTimeout = 200 * time.Millisecond

type HubMsg interface{ isHubMsg() }

type CreateChannel struct {
	Tempo     game.Tempo
	Mode      string
	Name      string
	Ephemeral bool
	Reply     chan CreateResult
}

type CreateResult struct {
	Session *channel.Session
	Err     error
}

type GetChannel struct {
	Tempo game.Tempo
	Name  string
	Reply chan *channel.Session
}

// ReserveSlot forwards a reservation to the named channel. The endpoint is
// notified directly when the channel does not exist.
type ReserveSlot struct {
	Tempo      game.Tempo
	Channel    string
	Endpoint   channel.Endpoint
	PlayerName string
}

type ListChannels struct {
	Tempo game.Tempo
	Reply chan []types.ChannelInfo
}

type RemoveChannel struct{ Session *channel.Session }

type WinlistUpdated struct{ Event events.WinlistUpdated }

type ShutdownHub struct{ Done chan struct{} }

func (CreateChannel) isHubMsg()  {}
func (GetChannel) isHubMsg()     {}
func (ReserveSlot) isHubMsg()    {}
func (ListChannels) isHubMsg()   {}
func (RemoveChannel) isHubMsg()  {}
func (WinlistUpdated) isHubMsg() {}
func (ShutdownHub) isHubMsg()    {}

type Config struct {
	IdleTimeout     time.Duration
	ListTimeout     time.Duration
	Bus             events.Bus
	RecorderOptions []game.RecorderOption
}

type Hub struct {
	cfg         Config
	inbox       chan HubMsg
	channels    map[game.Tempo]map[string]*channel.Session
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		cfg:      cfg,
		inbox:    make(chan HubMsg, 64),
		channels: make(map[game.Tempo]map[string]*channel.Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, t := range game.Tempos {
		h.channels[t] = make(map[string]*channel.Session)
	}
	if cfg.Bus != nil {
		unsubscribe, err := cfg.Bus.Subscribe(func(e events.Event) {
			if w, ok := e.(events.WinlistUpdated); ok {
				h.send(WinlistUpdated{Event: w})
			}
		})
		if err != nil {
			obslog.L().Warn("hub_winlist_subscribe_failed", zap.Error(err))
		} else {
			h.unsubscribe = unsubscribe
		}
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) send(m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateChannel:
				s, err := h.create(msg)
				msg.Reply <- CreateResult{Session: s, Err: err}

			case GetChannel:
				msg.Reply <- h.channels[msg.Tempo][msg.Name] // may be nil

			case ReserveSlot:
				s := h.channels[msg.Tempo][msg.Channel]
				if s == nil || !s.Send(channel.ReserveSlot{Endpoint: msg.Endpoint, Name: msg.PlayerName}) {
					msg.Endpoint.Notify(channel.SlotReservationFailed{Channel: msg.Channel, Reason: channel.ErrChannelNotAvailable})
				}

			case ListChannels:
				sessions := make([]*channel.Session, 0, len(h.channels[msg.Tempo]))
				for _, s := range h.channels[msg.Tempo] {
					sessions = append(sessions, s)
				}
				go h.list(sessions, msg.Reply)

			case RemoveChannel:
				byName := h.channels[msg.Session.Tempo()]
				if byName[msg.Session.Name()] == msg.Session {
					delete(byName, msg.Session.Name())
					obslog.L().Info("channel_removed",
						zap.String("tempo", string(msg.Session.Tempo())),
						zap.String("channel", msg.Session.Name()))
				}

			case WinlistUpdated:
				for _, s := range h.channels[msg.Event.Tempo] {
					s.Send(channel.WinlistUpdated{Tempo: msg.Event.Tempo, Mode: msg.Event.Mode, Entries: msg.Event.Entries})
				}

			case ShutdownHub:
				h.shutdown()
				close(msg.Done)
				return
			}
		}
	}
}

func (h *Hub) create(msg CreateChannel) (*channel.Session, error) {
	byName, ok := h.channels[msg.Tempo]
	if !ok {
		return nil, fmt.Errorf("%w: %q", game.ErrUnknownTempo, msg.Tempo)
	}
	if !validName.MatchString(msg.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, msg.Name)
	}
	if _, exists := byName[msg.Name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrNameInUse, msg.Name)
	}
	mode, err := game.FindMode(msg.Mode)
	if err != nil {
		return nil, err
	}

	s := channel.NewSession(h.ctx, channel.Config{
		Tempo:           msg.Tempo,
		Mode:            mode,
		Name:            msg.Name,
		Ephemeral:       msg.Ephemeral,
		IdleTimeout:     h.cfg.IdleTimeout,
		Bus:             h.cfg.Bus,
		OnClose:         func(s *channel.Session) { h.send(RemoveChannel{Session: s}) },
		RecorderOptions: h.cfg.RecorderOptions,
	})
	byName[msg.Name] = s
	obslog.L().Info("channel_created",
		zap.String("tempo", string(msg.Tempo)),
		zap.String("channel", msg.Name),
		zap.String("mode", string(mode.ID)),
		zap.Bool("ephemeral", msg.Ephemeral))
	return s, nil
}

// list asks every session for its listing and keeps what arrives before
// the timeout.
func (h *Hub) list(sessions []*channel.Session, reply chan []types.ChannelInfo) {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.ListTimeout)
	defer cancel()

	var (
		mu  sync.Mutex
		out = make([]types.ChannelInfo, 0, len(sessions))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			r := make(chan types.ChannelInfo, 1)
			if !s.Send(channel.ListChannels{Reply: r}) {
				return nil
			}
			select {
			case info := <-r:
				mu.Lock()
				out = append(out, info)
				mu.Unlock()
			case <-gctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(out, func(a, b types.ChannelInfo) int { return cmp.Compare(a.Name, b.Name) })
	reply <- out
}

func (h *Hub) shutdown() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	var sessions []*channel.Session
	for _, byName := range h.channels {
		for _, s := range byName {
			s.Send(channel.Shutdown{})
			sessions = append(sessions, s)
		}
		clear(byName)
	}
	for _, s := range sessions {
		<-s.Done()
	}
	h.cancel()
}

// Create starts a channel and waits for the result.
func (h *Hub) Create(ctx context.Context, tempo game.Tempo, mode, name string, ephemeral bool) (*channel.Session, error) {
	reply := make(chan CreateResult, 1)
	if !h.send(CreateChannel{Tempo: tempo, Mode: mode, Name: name, Ephemeral: ephemeral, Reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case res := <-reply:
		return res.Session, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns the named session or nil.
func (h *Hub) Lookup(ctx context.Context, tempo game.Tempo, name string) (*channel.Session, error) {
	reply := make(chan *channel.Session, 1)
	if !h.send(GetChannel{Tempo: tempo, Name: name, Reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) List(ctx context.Context, tempo game.Tempo) ([]types.ChannelInfo, error) {
	reply := make(chan []types.ChannelInfo, 1)
	if !h.send(ListChannels{Tempo: tempo, Reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Reserve(tempo game.Tempo, name string, ep channel.Endpoint, playerName string) {
	if !h.send(ReserveSlot{Tempo: tempo, Channel: name, Endpoint: ep, PlayerName: playerName}) {
		ep.Notify(channel.SlotReservationFailed{Channel: name, Reason: channel.ErrChannelNotAvailable})
	}
}

// Shutdown stops every session and then the hub itself.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if !h.send(ShutdownHub{Done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
