package tools

import (
	"context"
	"fmt"

	"github.com/xenolinkco/xenochat/internal/store"
)

// MemoryStore is the slice of the store the memory tools need.
type MemoryStore interface {
	StoreMemory(ctx context.Context, text, characterID, xenoprofileID string) error
	SearchMemories(ctx context.Context, query string, k int, characterID, xenoprofileID string) ([]store.MemoryHit, error)
}

func memoryPartition(args map[string]any) string {
	return stringArg(args, "characterId") + "|" + stringArg(args, "xenoprofileId")
}

const storeMemorySchema = `{
	"type": "object",
	"properties": {
		"text": {"type": "string", "minLength": 1},
		"characterId": {"type": "string", "minLength": 1},
		"xenoprofileId": {"type": "string", "minLength": 1}
	},
	"required": ["text", "characterId", "xenoprofileId"],
	"additionalProperties": false
}`

// NewStoreMemoryTool persists a fact into long-term memory. The outcome is
// reported in the result, so the model never claims a memory was saved when
// the write failed.
func NewStoreMemoryTool(memories MemoryStore) *Tool {
	return &Tool{
		Name: "storeMemory",
		Description: "Stores a piece of memory or information in the long-term memory. " +
			"Use this to remember important details from the conversation or about the user.",
		Schema: storeMemorySchema,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "The text content to store as a memory.",
				},
				"characterId": map[string]any{
					"type":        "string",
					"description": "The ID of the character associated with this memory.",
				},
				"xenoprofileId": map[string]any{
					"type":        "string",
					"description": "The ID of the xenoprofile associated with this memory.",
				},
			},
			"required": []string{"text", "characterId", "xenoprofileId"},
		},
		PartitionKey: memoryPartition,
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			err := memories.StoreMemory(ctx,
				stringArg(args, "text"),
				stringArg(args, "characterId"),
				stringArg(args, "xenoprofileId"))
			if err != nil {
				return map[string]any{
					"success": false,
					"message": fmt.Sprintf("Failed to store memory: %v", err),
				}, nil
			}
			return map[string]any{
				"success": true,
				"message": "Memory stored successfully.",
			}, nil
		},
	}
}

const retrieveMemoriesSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"k": {"type": "integer", "minimum": 1, "maximum": 10},
		"characterId": {"type": "string", "minLength": 1},
		"xenoprofileId": {"type": "string", "minLength": 1}
	},
	"required": ["query", "characterId", "xenoprofileId"],
	"additionalProperties": false
}`

// NewRetrieveMemoriesTool searches long-term memory. Retrieval failures
// degrade to an empty list so a flaky search cannot fail the conversation.
func NewRetrieveMemoriesTool(memories MemoryStore) *Tool {
	return &Tool{
		Name: "retrieveMemories",
		Description: "Retrieves relevant memories or information from the long-term memory " +
			"based on a query. Use this to recall past conversations or facts about a user.",
		Schema: retrieveMemoriesSchema,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The query to search for relevant memories.",
				},
				"k": map[string]any{
					"type":        "integer",
					"description": "The number of top relevant memories to retrieve. Defaults to 3.",
				},
				"characterId": map[string]any{
					"type":        "string",
					"description": "The ID of the character to filter memories by.",
				},
				"xenoprofileId": map[string]any{
					"type":        "string",
					"description": "The ID of the xenoprofile to filter memories by.",
				},
			},
			"required": []string{"query", "characterId", "xenoprofileId"},
		},
		PartitionKey: memoryPartition,
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			hits, err := memories.SearchMemories(ctx,
				stringArg(args, "query"),
				intArg(args, "k", 3),
				stringArg(args, "characterId"),
				stringArg(args, "xenoprofileId"))
			if err != nil {
				return []store.MemoryHit{}, nil
			}
			if hits == nil {
				hits = []store.MemoryHit{}
			}
			return hits, nil
		},
	}
}
