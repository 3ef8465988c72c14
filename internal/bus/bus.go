// Package bus decouples channels from the conversation pipeline. Channels
// push InboundMessages and subscribe for the OutboundMessages addressed to
// them; the gateway drains both sides.
package bus

import (
	"context"
	"sync"

	"github.com/xenolinkco/xenochat/internal/logging"
)

type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		subscribers: make(map[string]func(OutboundMessage)),
	}
}

// SubscribeOutbound registers the delivery callback for a channel name.
// A second registration for the same name replaces the first.
func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = fn
}

// DispatchOutbound routes outbound messages to their channel's subscriber
// until ctx is done. Messages for unknown channels are dropped with a log.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	log := logging.L("bus")
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			fn, ok := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			if !ok {
				log.Warnw("no subscriber for outbound channel", "channel", msg.Channel)
				continue
			}
			fn(msg)
		case <-ctx.Done():
			return
		}
	}
}
