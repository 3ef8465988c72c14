package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/xenolinkco/xenochat/internal/bus"
	"github.com/xenolinkco/xenochat/internal/config"
	"github.com/xenolinkco/xenochat/internal/logging"
)

type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

// NewChannelManager builds the enabled channels. The HTTP channel answers
// synchronously through the responder; bus-driven channels get their
// outbound replies via a subscription.
func NewChannelManager(cfg config.ChannelsConfig, gwCfg config.GatewayConfig, b *bus.MessageBus, responder Responder) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.HTTP.Enabled {
		ch, err := NewHTTPChannel(cfg.HTTP, gwCfg, b, responder)
		if err != nil {
			return nil, fmt.Errorf("init http channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, b)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.add(ch)
	}

	return m, nil
}

// add registers a bus-driven channel and routes its outbound traffic.
func (m *ChannelManager) add(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			logging.L("channel-mgr").Warnw("send failed", "channel", ch.Name(), "error", err)
		}
	})
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	log := logging.L("channel-mgr")

	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))
	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			log.Infow("starting", "channel", name)
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func (m *ChannelManager) StopAll() error {
	log := logging.L("channel-mgr")
	for name, ch := range m.channels {
		log.Infow("stopping", "channel", name)
		if err := ch.Stop(); err != nil {
			log.Warnw("stop failed", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// Get returns a channel by name, nil when absent.
func (m *ChannelManager) Get(name string) Channel {
	return m.channels[name]
}
