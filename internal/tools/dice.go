package tools

import (
	"context"
	"math/rand/v2"
)

const diceSchema = `{
	"type": "object",
	"properties": {
		"sides": {"type": "integer", "minimum": 2, "maximum": 100},
		"count": {"type": "integer", "minimum": 1, "maximum": 10}
	},
	"additionalProperties": false
}`

// NewDiceTool rolls count dice with the given number of sides. Defaults:
// one d20.
func NewDiceTool() *Tool {
	return &Tool{
		Name: "rollDice",
		Description: "Rolls dice for games of chance. " +
			"Use this when the user asks for a dice roll or a random outcome.",
		Schema: diceSchema,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sides": map[string]any{
					"type":        "integer",
					"description": "Number of sides per die, 2 to 100. Defaults to 20.",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Number of dice to roll, 1 to 10. Defaults to 1.",
				},
			},
		},
		Run: func(_ context.Context, args map[string]any) (any, error) {
			sides := intArg(args, "sides", 20)
			count := intArg(args, "count", 1)

			rolls := make([]int, count)
			total := 0
			for i := range rolls {
				rolls[i] = rand.IntN(sides) + 1
				total += rolls[i]
			}
			return map[string]any{"rolls": rolls, "total": total}, nil
		},
	}
}

// intArg reads an integer argument; model-decoded JSON numbers arrive as
// float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
