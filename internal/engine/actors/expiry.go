package actors

import (
	stdctx "context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
)

// Expiry is embedded in messages that change state. The engine stamps it with
// the moment the caller stops waiting for a reply.
type Expiry struct {
	Deadline time.Time
}

func (e *Expiry) SetDeadline(t time.Time) { e.Deadline = t }

func (e *Expiry) ExpiresAt() time.Time { return e.Deadline }

// Expiring is implemented by every message that embeds Expiry.
type Expiring interface {
	SetDeadline(t time.Time)
	ExpiresAt() time.Time
}

// storeContext bounds a store call by storeTimeout and by the deadline of the
// message being handled, if it has one. expired is set when that deadline has
// already passed; the message must then be dropped without touching the store.
func storeContext(context actor.Context, storeTimeout time.Duration) (ctx stdctx.Context, cancel stdctx.CancelFunc, expired bool) {
	now := time.Now()
	deadline := now.Add(storeTimeout)
	if m, ok := context.Message().(Expiring); ok {
		if d := m.ExpiresAt(); !d.IsZero() {
			if !d.After(now) {
				return nil, nil, true
			}
			if d.Before(deadline) {
				deadline = d
			}
		}
	}
	ctx, cancel = stdctx.WithDeadline(stdctx.Background(), deadline)
	return ctx, cancel, false
}
