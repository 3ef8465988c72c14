package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/xenolinkco/xenochat/internal/bus"
	"github.com/xenolinkco/xenochat/internal/config"
	"github.com/xenolinkco/xenochat/internal/logging"
	"github.com/xenolinkco/xenochat/internal/orchestrator"
)

const httpChannelName = "http"

// HTTPChannel serves the synchronous chat API. Unlike the bus-driven
// channels it answers in the request, so Send is a no-op.
type HTTPChannel struct {
	BaseChannel
	responder Responder
	addr      string
	server    *http.Server
	listener  net.Listener
}

func NewHTTPChannel(cfg config.HTTPConfig, gwCfg config.GatewayConfig, b *bus.MessageBus, responder Responder) (*HTTPChannel, error) {
	if responder == nil {
		return nil, fmt.Errorf("http channel: responder is required")
	}
	return &HTTPChannel{
		BaseChannel: NewBaseChannel(httpChannelName, b, cfg.AllowFrom),
		responder:   responder,
		addr:        fmt.Sprintf("%s:%d", gwCfg.Host, gwCfg.Port),
	}, nil
}

func (h *HTTPChannel) Start(ctx context.Context) error {
	log := logging.L("http")

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", h.handleChat)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http channel listen on %s: %w", h.addr, err)
	}
	h.listener = listener
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorw("serve failed", "error", err)
		}
	}()

	log.Infow("listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, useful when the port was 0.
func (h *HTTPChannel) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

func (h *HTTPChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req orchestrator.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.ChatID == "" || req.ProfileID == "" {
		writeJSONError(w, http.StatusBadRequest, "userId, chatId, and profileId are required")
		return
	}
	if !h.IsAllowed(req.UserID) {
		writeJSONError(w, http.StatusForbidden, "sender not allowed")
		return
	}

	resp := h.responder.Respond(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *HTTPChannel) Stop() error {
	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http channel shutdown: %w", err)
	}
	logging.L("http").Infow("stopped")
	return nil
}

// Send is a no-op: the HTTP API replies inside the request cycle.
func (h *HTTPChannel) Send(bus.OutboundMessage) error { return nil }
