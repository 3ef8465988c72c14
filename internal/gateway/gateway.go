// Package gateway is the composition root: it opens the store, builds the
// model client, tools, orchestrator, and channels, and runs the inbound
// message loop until shutdown.
package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xenolinkco/xenochat/internal/bus"
	"github.com/xenolinkco/xenochat/internal/channel"
	"github.com/xenolinkco/xenochat/internal/chunk"
	"github.com/xenolinkco/xenochat/internal/config"
	"github.com/xenolinkco/xenochat/internal/embed"
	"github.com/xenolinkco/xenochat/internal/llm"
	"github.com/xenolinkco/xenochat/internal/logging"
	"github.com/xenolinkco/xenochat/internal/maintenance"
	"github.com/xenolinkco/xenochat/internal/orchestrator"
	"github.com/xenolinkco/xenochat/internal/persona"
	"github.com/xenolinkco/xenochat/internal/store"
	"github.com/xenolinkco/xenochat/internal/tools"
)

// Options carries injectable pieces for testing. Nil fields get the real
// implementations.
type Options struct {
	Generator  llm.Generator
	Embedder   store.Embedder
	SignalChan chan os.Signal
}

type Gateway struct {
	cfg         *config.Config
	bus         *bus.MessageBus
	store       *store.Store
	orch        *orchestrator.Orchestrator
	channels    *channel.ChannelManager
	maintenance *maintenance.Service
	signalChan  chan os.Signal
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	embedder := opts.Embedder
	if embedder == nil {
		embedder, err = embed.NewEngine(context.Background(), cfg.Provider.APIKey, cfg.Memory.EmbeddingModel)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}
	st.SetEmbedder(embedder)
	st.SetSplitter(chunk.NewSplitter(chunk.Config{
		MinLength: cfg.Lore.ChunkMinLength,
		MaxLength: cfg.Lore.ChunkMaxLength,
		Overlap:   cfg.Lore.ChunkOverlap,
	}))

	generator := opts.Generator
	if generator == nil {
		generator, err = llm.NewClient(llm.Config{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
			Model:   cfg.Agent.Model,
			Timeout: time.Duration(cfg.Agent.RequestTimeoutSec) * time.Second,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create model client: %w", err)
		}
	}

	registry := tools.NewRegistry()
	for _, t := range []*tools.Tool{
		tools.NewDiceTool(),
		tools.NewStoreMemoryTool(st),
		tools.NewRetrieveMemoriesTool(st),
		tools.NewConsultWorldbookTool(st, cfg.Lore.TopK),
	} {
		if err := registry.Register(t); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}

	g.orch = orchestrator.New(st, st, st, persona.NewResolver(st), registry, generator, orchestrator.Options{
		Temperature:       cfg.Agent.Temperature,
		MaxOutputTokens:   cfg.Agent.MaxOutputTokens,
		MaxToolIterations: cfg.Agent.MaxToolIterations,
		MaxMessageChars:   cfg.Agent.MaxMessageChars,
		MemoryTopK:        cfg.Memory.TopK,
		LoreTopK:          cfg.Lore.TopK,
	})

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus, g.orch)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	if cfg.Cron.Enabled {
		g.maintenance = maintenance.NewService(cfg.Cron.BackfillSchedule, cfg.Cron.BackfillBatchSize, st)
	}

	g.signalChan = opts.SignalChan
	return g, nil
}

// Store exposes the underlying store for the CLI commands.
func (g *Gateway) Store() *store.Store { return g.store }

// Orchestrator exposes the conversation pipeline for direct callers.
func (g *Gateway) Orchestrator() *orchestrator.Orchestrator { return g.orch }

func (g *Gateway) Run(ctx context.Context) error {
	log := logging.L("gateway")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Infow("channels started", "channels", g.channels.EnabledChannels())

	if g.maintenance != nil {
		if err := g.maintenance.Start(ctx); err != nil {
			log.Warnw("maintenance start failed", "error", err)
		}
	}

	go g.processLoop(ctx)

	log.Infow("running", "host", g.cfg.Gateway.Host, "port", g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	return g.Shutdown()
}

// processLoop drives bus-fed channels: every inbound message becomes one
// orchestrated turn and the reply is routed back out.
func (g *Gateway) processLoop(ctx context.Context) {
	log := logging.L("gateway")
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Debugw("inbound", "channel", msg.Channel, "userId", msg.UserID, "chatId", msg.ChatID)

			resp := g.orch.Respond(ctx, orchestrator.Request{
				UserID:        msg.UserID,
				ChatID:        msg.ChatID,
				ProfileID:     msg.ProfileID,
				UserMessage:   msg.Content,
				CharacterID:   msg.CharacterID,
				CharacterName: msg.CharacterName,
			})

			g.bus.Outbound <- bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: resp.Reply,
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) Shutdown() error {
	log := logging.L("gateway")
	if g.maintenance != nil {
		g.maintenance.Stop()
	}
	_ = g.channels.StopAll()
	if err := g.store.Close(); err != nil {
		log.Warnw("close store failed", "error", err)
	}
	logging.Sync()
	log.Infow("shutdown complete")
	return nil
}
