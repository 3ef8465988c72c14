package bus

import (
	"context"
	"testing"
	"time"
)

func TestSessionKey(t *testing.T) {
	msg := &InboundMessage{Channel: "telegram", ChatID: "12345"}
	if got := msg.SessionKey(); got != "telegram:12345" {
		t.Errorf("SessionKey = %q, want telegram:12345", got)
	}
}

func TestDispatchOutbound_RoutesToSubscriber(t *testing.T) {
	b := NewMessageBus(10)

	received := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("http", func(msg OutboundMessage) {
		received <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "http", ChatID: "c1", Content: "hello"}

	select {
	case msg := <-received:
		if msg.Content != "hello" || msg.ChatID != "c1" {
			t.Errorf("got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received message")
	}
}

func TestDispatchOutbound_DropsUnknownChannel(t *testing.T) {
	b := NewMessageBus(10)

	received := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		received <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "nonexistent", Content: "dropped"}
	b.Outbound <- OutboundMessage{Channel: "telegram", Content: "kept"}

	select {
	case msg := <-received:
		if msg.Content != "kept" {
			t.Errorf("got %q, want the message for the registered channel", msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch stalled after unknown channel")
	}
}

func TestNewMessageBus_MinimumBuffer(t *testing.T) {
	b := NewMessageBus(0)
	if cap(b.Inbound) < 1 || cap(b.Outbound) < 1 {
		t.Error("bus channels should have at least capacity 1")
	}
}
