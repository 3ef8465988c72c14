package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-2.0-flash",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestGenerate_TextResponse(t *testing.T) {
	var gotReq geminiRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": "Hello there."}}},
				"finishReason": "STOP",
			}},
		})
	})

	resp, err := c.Generate(context.Background(), Request{
		SystemInstruction: "You are Zyx.",
		Contents:          []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
		Temperature:       0.7,
		MaxOutputTokens:   155,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "Hello there." {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("unexpected tool calls: %+v", resp.ToolCalls)
	}

	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "You are Zyx." {
		t.Error("systemInstruction not sent")
	}
	if gotReq.GenerationConfig.Temperature != 0.7 || gotReq.GenerationConfig.MaxOutputTokens != 155 {
		t.Errorf("generationConfig = %+v", gotReq.GenerationConfig)
	}
}

func TestGenerate_FunctionCall(t *testing.T) {
	var gotReq geminiRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{{
					"functionCall": map[string]any{
						"name": "rollDice",
						"args": map[string]any{"sides": 20},
					},
				}}},
			}},
		})
	})

	resp, err := c.Generate(context.Background(), Request{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "roll a d20"}}}},
		Tools: []ToolDefinition{{
			Name:        "rollDice",
			Description: "Rolls dice.",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "rollDice" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if sides, ok := resp.ToolCalls[0].Args["sides"].(float64); !ok || sides != 20 {
		t.Errorf("args = %+v", resp.ToolCalls[0].Args)
	}

	if len(gotReq.Tools) != 1 || len(gotReq.Tools[0].FunctionDeclarations) != 1 {
		t.Errorf("functionDeclarations not sent: %+v", gotReq.Tools)
	}
}

func TestGenerate_RetriesRateLimit(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}},
			}},
		})
	})

	resp, err := c.Generate(context.Background(), Request{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "ok" || attempts != 2 {
		t.Errorf("text = %q, attempts = %d", resp.Text, attempts)
	}
}

func TestGenerate_APIErrorNotRetried(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := c.Generate(context.Background(), Request{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("bad request retried %d times", attempts)
	}
}

func TestGenerate_EmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	resp, err := c.Generate(context.Background(), Request{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "" || len(resp.ToolCalls) != 0 {
		t.Errorf("got %+v, want empty response", resp)
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for missing api key")
	}

	c, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Model() != "gemini-2.0-flash" {
		t.Errorf("default model = %q", c.Model())
	}
}
