// Package orchestrator runs one conversation turn end to end: validation,
// concurrent context gathering, prompt assembly, the model tool loop, and
// persistence of the exchange.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenolinkco/xenochat/internal/llm"
	"github.com/xenolinkco/xenochat/internal/logging"
	"github.com/xenolinkco/xenochat/internal/persona"
	"github.com/xenolinkco/xenochat/internal/store"
	"github.com/xenolinkco/xenochat/internal/tools"
)

// Fixed user-facing replies. These are part of the external contract; chat
// clients pattern-match on them.
const (
	ReplyNoMessage  = "I didn't receive a message. Could you please try again?"
	ReplyTooLong    = "Your message is too long. Please try a shorter message."
	ReplyNoResponse = "I'm not sure how to respond to that right now."
	ReplyError      = "Sorry, I encountered an error. Please try again."
)

type Request struct {
	UserID        string `json:"userId"`
	ChatID        string `json:"chatId"`
	ProfileID     string `json:"profileId"`
	UserMessage   string `json:"userMessage"`
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName"`
}

type Response struct {
	Reply string `json:"reply"`
}

// HistoryStore is the slice of the store the orchestrator persists through.
type HistoryStore interface {
	History(ctx context.Context, userID, chatID string) ([]store.Message, error)
	AppendMessage(ctx context.Context, msg store.Message) (*store.Message, error)
}

// MemorySearcher feeds the proactive memory block of the prompt.
type MemorySearcher interface {
	SearchMemories(ctx context.Context, query string, k int, characterID, xenoprofileID string) ([]store.MemoryHit, error)
}

// LoreSearcher feeds the proactive lore block of the prompt.
type LoreSearcher interface {
	SearchLore(ctx context.Context, query string, limit int, filter store.LoreFilter) ([]store.LoreHit, error)
}

// PersonaResolver resolves the two personas of a turn.
type PersonaResolver interface {
	ResolveBot(ctx context.Context, xenoprofileID string) persona.Persona
	ResolveCharacter(ctx context.Context, userID, characterID, fallbackName string) persona.Persona
}

// ToolRunner exposes the tool catalogue and executes batches of calls.
type ToolRunner interface {
	Definitions() []llm.ToolDefinition
	ExecuteBatch(ctx context.Context, calls []llm.ToolCall) []tools.Result
}

// Options bound one turn. Zero values fall back to sensible limits.
type Options struct {
	Temperature       float64
	MaxOutputTokens   int
	MaxToolIterations int
	MaxMessageChars   int
	MemoryTopK        int
	LoreTopK          int
}

func (o *Options) applyDefaults() {
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 155
	}
	if o.MaxToolIterations <= 0 {
		o.MaxToolIterations = 5
	}
	if o.MaxMessageChars <= 0 {
		o.MaxMessageChars = 4000
	}
	if o.MemoryTopK <= 0 {
		o.MemoryTopK = 3
	}
	if o.LoreTopK <= 0 {
		o.LoreTopK = 3
	}
}

type Orchestrator struct {
	history   HistoryStore
	memories  MemorySearcher
	lore      LoreSearcher
	personas  PersonaResolver
	tools     ToolRunner
	generator llm.Generator
	opts      Options

	mu    sync.Mutex
	chats map[string]*sync.Mutex
}

func New(history HistoryStore, memories MemorySearcher, lore LoreSearcher,
	personas PersonaResolver, runner ToolRunner, generator llm.Generator, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		history:   history,
		memories:  memories,
		lore:      lore,
		personas:  personas,
		tools:     runner,
		generator: generator,
		opts:      opts,
		chats:     make(map[string]*sync.Mutex),
	}
}

// Respond runs one turn. It never returns an error to the caller; every
// failure path maps to one of the fixed replies.
func (o *Orchestrator) Respond(ctx context.Context, req Request) Response {
	log := logging.L("orchestrator").With("userId", req.UserID, "chatId", req.ChatID)

	// Validation short-circuits touch no store.
	if strings.TrimSpace(req.UserMessage) == "" {
		return Response{Reply: ReplyNoMessage}
	}
	if utf8.RuneCountInString(req.UserMessage) > o.opts.MaxMessageChars {
		return Response{Reply: ReplyTooLong}
	}

	// One turn at a time per chat; concurrent requests for the same chat
	// queue up instead of interleaving their history writes.
	lock := o.chatLock(req.UserID + "|" + req.ChatID)
	lock.Lock()
	defer lock.Unlock()

	gathered := o.gather(ctx, req)

	// Server-side write of the user turn. A failure here degrades the
	// history record, not the reply.
	userTurn := store.Message{
		UserID:     req.UserID,
		ChatID:     req.ChatID,
		Role:       store.RoleUser,
		Text:       req.UserMessage,
		SenderID:   req.UserID,
		ReceiverID: req.ProfileID,
		SenderName: gathered.character.Name,
	}
	if _, err := o.history.AppendMessage(ctx, userTurn); err != nil {
		log.Warnw("persist user turn failed", "error", err)
	}

	systemPrompt := assemblePrompt(gathered.bot, gathered.character, gathered.memoryHits, gathered.loreHits)
	contents := buildContents(gathered.history, req.UserMessage)

	reply, ok := o.runModelLoop(ctx, log, systemPrompt, contents)
	if !ok {
		return Response{Reply: reply}
	}

	modelTurn := store.Message{
		UserID:     req.UserID,
		ChatID:     req.ChatID,
		Role:       store.RoleModel,
		Text:       reply,
		SenderID:   req.ProfileID,
		ReceiverID: req.UserID,
		SenderName: gathered.bot.Name,
	}
	if _, err := o.history.AppendMessage(ctx, modelTurn); err != nil {
		log.Warnw("persist model turn failed", "error", err)
	}
	return Response{Reply: reply}
}

type gathered struct {
	bot        persona.Persona
	character  persona.Persona
	memoryHits []store.MemoryHit
	loreHits   []store.LoreHit
	history    []store.Message
}

// gather fans out the independent context reads. Each arm degrades to its
// default on failure; a dead retrieval source costs context, not the turn.
func (o *Orchestrator) gather(ctx context.Context, req Request) gathered {
	log := logging.L("orchestrator")
	var g gathered

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.bot = o.personas.ResolveBot(ctx, req.ProfileID)
		return nil
	})
	eg.Go(func() error {
		g.character = o.personas.ResolveCharacter(ctx, req.UserID, req.CharacterID, req.CharacterName)
		return nil
	})
	eg.Go(func() error {
		hits, err := o.memories.SearchMemories(ctx, req.UserMessage, o.opts.MemoryTopK, req.CharacterID, req.ProfileID)
		if err != nil {
			log.Infow("memory search degraded", "error", err)
			return nil
		}
		g.memoryHits = hits
		return nil
	})
	eg.Go(func() error {
		hits, err := o.lore.SearchLore(ctx, req.UserMessage, o.opts.LoreTopK, store.LoreFilter{})
		if err != nil {
			log.Infow("lore search degraded", "error", err)
			return nil
		}
		g.loreHits = hits
		return nil
	})
	eg.Go(func() error {
		hist, err := o.history.History(ctx, req.UserID, req.ChatID)
		if err != nil {
			log.Warnw("history read degraded", "error", err)
			return nil
		}
		g.history = hist
		return nil
	})
	_ = eg.Wait()
	return g
}

// runModelLoop drives generate/tool rounds until the model produces text.
// Returns (reply, true) for a real model reply that should be persisted,
// (canned, false) otherwise.
func (o *Orchestrator) runModelLoop(ctx context.Context, log *zap.SugaredLogger, systemPrompt string, contents []llm.Content) (string, bool) {
	defs := o.tools.Definitions()

	for iter := 0; iter < o.opts.MaxToolIterations; iter++ {
		resp, err := o.generator.Generate(ctx, llm.Request{
			SystemInstruction: systemPrompt,
			Contents:          contents,
			Tools:             defs,
			Temperature:       o.opts.Temperature,
			MaxOutputTokens:   o.opts.MaxOutputTokens,
		})
		if err != nil {
			log.Warnw("model call failed", "error", err)
			return ReplyError, false
		}

		if len(resp.ToolCalls) > 0 {
			contents = appendToolRound(contents, resp, o.tools.ExecuteBatch(ctx, resp.ToolCalls))
			continue
		}

		if resp.Text == "" {
			log.Infow("model returned empty output")
			return ReplyNoResponse, false
		}
		return resp.Text, true
	}

	log.Warnw("tool iteration limit reached", "limit", o.opts.MaxToolIterations)
	return ReplyError, false
}

// appendToolRound records the model's functionCall turn and the matching
// functionResponse turn so the next generate call sees both.
func appendToolRound(contents []llm.Content, resp *llm.Response, results []tools.Result) []llm.Content {
	callParts := make([]llm.Part, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		callParts = append(callParts, llm.Part{
			FunctionCall: &llm.FunctionCall{Name: call.Name, Args: call.Args},
		})
	}
	contents = append(contents, llm.Content{Role: "model", Parts: callParts})

	respParts := make([]llm.Part, 0, len(results))
	for _, res := range results {
		var payload map[string]any
		if res.Err != nil {
			payload = map[string]any{"error": res.Err.Error()}
		} else {
			payload = map[string]any{"content": res.Output}
		}
		respParts = append(respParts, llm.Part{
			FunctionResponse: &llm.FunctionResponse{Name: res.Name, Response: payload},
		})
	}
	return append(contents, llm.Content{Role: "user", Parts: respParts})
}

// buildContents maps persisted history into model turns and appends the
// live utterance. If the fetched history already ends with an identical
// user turn, the append is skipped: the model input must carry exactly one
// trailing instance of the utterance.
func buildContents(history []store.Message, userMessage string) []llm.Content {
	contents := make([]llm.Content, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, llm.Content{
			Role:  m.Role,
			Parts: []llm.Part{{Text: m.Text}},
		})
	}
	if n := len(contents); n > 0 {
		last := contents[n-1]
		if last.Role == store.RoleUser && len(last.Parts) == 1 && last.Parts[0].Text == userMessage {
			return contents
		}
	}
	return append(contents, llm.Content{
		Role:  store.RoleUser,
		Parts: []llm.Part{{Text: userMessage}},
	})
}

func (o *Orchestrator) chatLock(key string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.chats[key]
	if !ok {
		lock = &sync.Mutex{}
		o.chats[key] = lock
	}
	return lock
}
