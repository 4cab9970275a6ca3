package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tenorite/tenorite-server/internal/channel"
	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/obslog"
	"github.com/tenorite/tenorite-server/internal/protocol"
	"github.com/tenorite/tenorite-server/pkg/types"
)

const (
	outboxSize  = 256
	noticesSize = 16
)

// Directory is what a client needs from the channel registry.
type Directory interface {
	Reserve(tempo game.Tempo, name string, ep channel.Endpoint, playerName string)
	List(ctx context.Context, tempo game.Tempo) ([]types.ChannelInfo, error)
}

// Client is one connected player. It implements channel.Endpoint; Run
// drives it from the messages the transport decodes.
type Client struct {
	dir   Directory
	tempo game.Tempo
	name  string
	log   *zap.Logger

	out       chan protocol.Message
	notices   chan channel.Notice
	done      chan struct{}
	closeOnce sync.Once

	// owned by Run
	current *channel.Session
	joining *channel.Session
}

func NewClient(dir Directory, tempo game.Tempo, name string) *Client {
	return &Client{
		dir:     dir,
		tempo:   tempo,
		name:    name,
		log:     obslog.L().With(zap.String("player", name), zap.String("tempo", string(tempo))),
		out:     make(chan protocol.Message, outboxSize),
		notices: make(chan channel.Notice, noticesSize),
		done:    make(chan struct{}),
	}
}

// Send queues a message for the transport. A client that cannot keep up is
// dropped.
func (c *Client) Send(m protocol.Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- m:
	default:
		c.log.Warn("client_too_slow")
		c.Close()
	}
}

// Notify queues a session notice. Like Send it never blocks; a client
// whose notices pile up is dropped.
func (c *Client) Notify(n channel.Notice) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.notices <- n:
	default:
		c.log.Warn("client_notices_overflow")
		c.Close()
	}
}

func (c *Client) Done() <-chan struct{}           { return c.done }
func (c *Client) Outbox() <-chan protocol.Message { return c.out }

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Run greets the client and then handles its messages and channel notices
// until the client goes away.
func (c *Client) Run(ctx context.Context, incoming <-chan protocol.Message, join string) {
	defer c.Close()

	c.greet()
	c.list(ctx)
	if join != "" {
		c.dir.Reserve(c.tempo, join, c, c.name)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return

		case n := <-c.notices:
			c.handleNotice(n)

		case m, ok := <-incoming:
			if !ok {
				return
			}
			if pl, isPline := m.(protocol.Pline); isPline && strings.HasPrefix(pl.Text, "/") {
				if !c.command(ctx, pl.Text) {
					return
				}
				continue
			}
			if c.current != nil {
				c.current.Send(channel.FromClient{Endpoint: c, Message: m})
			}
		}
	}
}

func (c *Client) handleNotice(n channel.Notice) {
	switch n := n.(type) {
	case channel.SlotReserved:
		if c.current != nil && c.current != n.Session {
			// leave first, confirm once the old channel let us go
			if c.joining != nil && c.joining != n.Session {
				c.joining.Send(channel.LeaveChannel{Endpoint: c})
			}
			c.joining = n.Session
			c.current.Send(channel.LeaveChannel{Endpoint: c})
			return
		}
		c.current = n.Session
		n.Session.Send(channel.ConfirmSlot{Endpoint: c})

	case channel.ChannelLeft:
		if n.Session != c.current {
			return
		}
		c.current = nil
		if c.joining != nil {
			c.current, c.joining = c.joining, nil
			c.current.Send(channel.ConfirmSlot{Endpoint: c})
		}

	case channel.ChannelClosed:
		if n.Session == c.current {
			c.current = nil
			if c.joining != nil {
				c.current, c.joining = c.joining, nil
				c.current.Send(channel.ConfirmSlot{Endpoint: c})
			}
		}
		if n.Session == c.joining {
			c.joining = nil
		}

	case channel.SlotReservationFailed:
		if errors.Is(n.Reason, channel.ErrChannelFull) {
			c.Send(server("channel is <b>FULL</b>"))
		} else {
			c.Send(server("channel is <b>not available</b>"))
		}
	}
}

// command runs a slash command and reports false when the client should
// disconnect.
func (c *Client) command(ctx context.Context, text string) bool {
	fields := strings.Fields(text)
	switch strings.ToLower(fields[0]) {
	case "/join":
		if len(fields) < 2 {
			c.Send(server("<red>usage: /join <channel></red>"))
			return true
		}
		name := strings.TrimPrefix(fields[1], "#")
		if c.current != nil && c.current.Name() == name {
			return true
		}
		c.dir.Reserve(c.tempo, name, c, c.name)
	case "/list":
		c.list(ctx)
	case "/exit":
		return false
	default:
		c.Send(server(fmt.Sprintf("<red>unknown command %s</red>", fields[0])))
	}
	return true
}

func (c *Client) greet() {
	c.Send(protocol.PlayerNum{Slot: 1})
	for _, line := range []string{
		"",
		"Welcome on <b>Tenorite TetriNET</b> Server!",
		"",
		"<i>Join a channel to start playing...</i>",
		"",
	} {
		c.Send(server(line))
	}
}

func (c *Client) list(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	channels, err := c.dir.List(ctx, c.tempo)
	if err != nil {
		c.log.Debug("list_failed", zap.Error(err))
		return
	}
	for _, line := range ListingLines(channels) {
		c.Send(server(line))
	}
}

// ListingLines renders a channel listing as chat lines.
func ListingLines(channels []types.ChannelInfo) []string {
	lines := make([]string, 0, len(channels)+2)
	for _, ch := range channels {
		load := fmt.Sprintf("<blue>(%d/%d)</blue>", ch.Players, ch.Max)
		if ch.Players >= ch.Max {
			load = "<red>(FULL)</red>"
		}
		lines = append(lines, fmt.Sprintf("   %s - %s %s", ch.Name, ch.Mode, load))
	}
	return append(lines, "", "<gray>(type /join <name>)</gray>")
}

func server(text string) protocol.Pline {
	return protocol.Pline{Sender: protocol.ServerSlot, Text: text}
}
