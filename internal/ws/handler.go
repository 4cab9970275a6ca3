package ws

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/obslog"
	"github.com/tenorite/tenorite-server/internal/protocol"
	"github.com/tenorite/tenorite-server/pkg/types"
)

const writeTimeout = 3 * time.Second

var validPlayerName = regexp.MustCompile(`^[^\s;]{1,30}$`)

// Handler upgrades GET /ws?tempo=&name=[&channel=] to a client connection.
func Handler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tempo, err := game.ParseTempo(q.Get("tempo"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name := q.Get("name")
		if !validPlayerName.MatchString(name) {
			http.Error(w, "invalid player name", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := obslog.L().With(zap.String("player", name), zap.String("tempo", string(tempo)))
		log.Info("client_connected")
		defer log.Info("client_disconnected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := NewClient(dir, tempo, name)
		go writeLoop(ctx, conn, c)

		incoming := make(chan protocol.Message, 16)
		go readLoop(ctx, conn, incoming, log)

		c.Run(ctx, incoming, q.Get("channel"))
	}
}

// writeLoop drains the client outbox until the client is closed.
func writeLoop(ctx context.Context, conn *websocket.Conn, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case m := <-c.Outbox():
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, protocol.Encode(m))
			cancel()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// readLoop decodes client envelopes. Malformed messages are dropped; the
// channel is closed when the connection goes away.
func readLoop(ctx context.Context, conn *websocket.Conn, out chan<- protocol.Message, log *zap.Logger) {
	defer close(out)
	for {
		var env types.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("client_read_failed", zap.Error(err))
				}
			}
			return
		}
		m, err := protocol.DecodeClient(env)
		if err != nil {
			log.Debug("client_message_dropped", zap.String("type", env.Type), zap.Error(err))
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}
