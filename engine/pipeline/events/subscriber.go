package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// Subscriber yields parsed envelopes from one session's channel until the
// caller detaches. Each observer creates its own Subscriber and its own
// NATS subscription — this mirrors the source system's one-subscription-
// per-observer design, so one slow consumer can't starve another.
type Subscriber struct {
	sub *nats.Subscription
	ch  chan Envelope
	nc  *nats.Conn
}

// Subscribe opens a subscription on the session's channel. Malformed
// messages are silently dropped, matching the source subscriber's
// behavior.
func Subscribe(nc *nats.Conn, sessionID string) (*Subscriber, error) {
	ch := make(chan Envelope, 64)
	sub, err := nc.Subscribe(Subject(sessionID), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			return
		}
		select {
		case ch <- env:
		default:
			// Slow consumer: drop rather than block the NATS dispatch
			// goroutine indefinitely.
		}
	})
	if err != nil {
		close(ch)
		return nil, err
	}
	return &Subscriber{sub: sub, ch: ch, nc: nc}, nil
}

// Listen returns the channel of parsed envelopes. The channel closes when
// Close is called.
func (s *Subscriber) Listen() <-chan Envelope {
	return s.ch
}

// Close tears down the subscription and the underlying channel.
func (s *Subscriber) Close() error {
	err := s.sub.Unsubscribe()
	close(s.ch)
	return err
}

// SubscribeContext registers a callback-style handler for a session's
// channel, for callers (the Gateway) that want to react inline rather than
// drain a channel.
func SubscribeContext(ctx context.Context, nc *nats.Conn, sessionID string, handler func(context.Context, Envelope)) (*nats.Subscription, error) {
	return nc.Subscribe(Subject(sessionID), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			return
		}
		handler(ctx, env)
	})
}
