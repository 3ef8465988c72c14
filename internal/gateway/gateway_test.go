package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/xenolinkco/xenochat/internal/bus"
	"github.com/xenolinkco/xenochat/internal/channel"
	"github.com/xenolinkco/xenochat/internal/config"
	"github.com/xenolinkco/xenochat/internal/llm"
)

type fakeGenerator struct {
	reply string
}

func (f *fakeGenerator) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: f.reply}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = 0
	cfg.Cron.Enabled = false
	cfg.Channels.HTTP.Enabled = true
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	g, err := NewWithOptions(cfg, Options{
		Generator: &fakeGenerator{reply: "scripted reply"},
		Embedder:  fakeEmbedder{},
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return g
}

func TestNewWithOptions_WiresComponents(t *testing.T) {
	g := newTestGateway(t, testConfig(t))
	defer g.store.Close()

	if g.orch == nil || g.channels == nil || g.store == nil {
		t.Fatal("gateway missing components")
	}
	if g.maintenance != nil {
		t.Error("maintenance should be off when cron is disabled")
	}

	cfg := testConfig(t)
	cfg.Cron.Enabled = true
	g2 := newTestGateway(t, cfg)
	defer g2.store.Close()
	if g2.maintenance == nil {
		t.Error("maintenance should be built when cron is enabled")
	}
}

func TestProcessLoop_RoutesReply(t *testing.T) {
	g := newTestGateway(t, testConfig(t))
	defer g.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies := make(chan bus.OutboundMessage, 1)
	g.bus.SubscribeOutbound("mock", func(msg bus.OutboundMessage) {
		replies <- msg
	})
	go g.bus.DispatchOutbound(ctx)
	go g.processLoop(ctx)

	g.bus.Inbound <- bus.InboundMessage{
		Channel:       "mock",
		UserID:        "u1",
		ChatID:        "c1",
		ProfileID:     "xp-1",
		CharacterID:   "char-1",
		CharacterName: "Ann",
		Content:       "hello",
		Timestamp:     time.Now(),
	}

	select {
	case out := <-replies:
		if out.Content != "scripted reply" {
			t.Errorf("reply = %q", out.Content)
		}
		if out.ChatID != "c1" {
			t.Errorf("chatId = %q", out.ChatID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no outbound reply")
	}

	// The turn must be persisted: one user and one model message.
	history, err := g.store.History(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
}

func TestRun_HTTPEndToEnd(t *testing.T) {
	g := newTestGateway(t, testConfig(t))

	sigCh := make(chan os.Signal, 1)
	g.signalChan = sigCh

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	var addr string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ch, ok := g.channels.Get("http").(*channel.HTTPChannel); ok && ch.Addr() != "" {
			if resp, err := http.Get("http://" + ch.Addr() + "/healthz"); err == nil {
				resp.Body.Close()
				addr = ch.Addr()
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("http channel did not come up")
	}

	payload, _ := json.Marshal(map[string]string{
		"userId":        "u1",
		"chatId":        "c1",
		"profileId":     "xp-1",
		"userMessage":   "hello",
		"characterId":   "char-1",
		"characterName": "Ann",
	})
	resp, err := http.Post("http://"+addr+"/v1/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body["reply"] != "scripted reply" {
		t.Errorf("reply = %q", body["reply"])
	}

	sigCh <- syscall.SIGTERM
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
