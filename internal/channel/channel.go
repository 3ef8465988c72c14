// Package channel hosts the chat-facing transports. Each channel turns its
// native messages into bus traffic (or, for the HTTP API, a synchronous
// call) and delivers replies back out.
package channel

import (
	"context"

	"github.com/xenolinkco/xenochat/internal/bus"
	"github.com/xenolinkco/xenochat/internal/orchestrator"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// Responder answers one chat turn synchronously. Satisfied by the
// orchestrator.
type Responder interface {
	Respond(ctx context.Context, req orchestrator.Request) orchestrator.Response
}

// BaseChannel carries the pieces every channel shares: its name, the bus,
// and the sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = true
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string { return c.name }

// IsAllowed reports whether a sender may use this channel. An empty
// allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}
