package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tenorite/tenorite-server/internal/obslog"
)

const DefaultSubjectPrefix = "tenorite"

// NATSBus publishes events as JSON on "<prefix>.<kind>" subjects, so that
// several server processes and external consumers share one stream.
type NATSBus struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSBus(url string, opts ...nats.Option) (*NATSBus, error) {
	opts = append([]nats.Option{nats.Name("tenorite-server")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{nc: nc, prefix: DefaultSubjectPrefix}, nil
}

func (b *NATSBus) subject(k Kind) string { return b.prefix + "." + string(k) }

func (b *NATSBus) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Kind(), err)
	}
	if err := b.nc.Publish(b.subject(e.Kind()), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind(), err)
	}
	return nil
}

func (b *NATSBus) Subscribe(h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(b.prefix+".>", func(m *nats.Msg) {
		kind := Kind(strings.TrimPrefix(m.Subject, b.prefix+"."))
		e, err := decode(kind, m.Data)
		if err != nil {
			obslog.L().Warn("event_decode_failed", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		h(e)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	// make sure the server knows the interest before anything is published
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains pending messages and closes the connection.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
