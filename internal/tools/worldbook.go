package tools

import (
	"context"
	"strings"

	"github.com/xenolinkco/xenochat/internal/store"
)

// NoLoreFound is returned when a worldbook lookup matches nothing.
const NoLoreFound = "No relevant information found in the worldbook."

// LoreSearcher is the slice of the store the worldbook tool needs.
type LoreSearcher interface {
	SearchLore(ctx context.Context, query string, limit int, filter store.LoreFilter) ([]store.LoreHit, error)
}

const consultWorldbookSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1}
	},
	"required": ["query"],
	"additionalProperties": false
}`

// NewConsultWorldbookTool looks up static lore. Read-only, so it carries no
// partition key.
func NewConsultWorldbookTool(lore LoreSearcher, topK int) *Tool {
	if topK <= 0 {
		topK = 3
	}
	return &Tool{
		Name: "consultWorldbook",
		Description: "Consults the worldbook to get information about the world, species, " +
			"locations, lore, and other static universe details. " +
			"Use this when the user asks about the setting or background info.",
		Schema: consultWorldbookSchema,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The query to search the worldbook for.",
				},
			},
			"required": []string{"query"},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			hits, err := lore.SearchLore(ctx, stringArg(args, "query"), topK, store.LoreFilter{})
			if err != nil || len(hits) == 0 {
				return NoLoreFound, nil
			}
			texts := make([]string, 0, len(hits))
			for _, h := range hits {
				texts = append(texts, h.Content)
			}
			return strings.Join(texts, "\n\n"), nil
		},
	}
}
