package orchestrator

import (
	"fmt"
	"strings"

	"github.com/xenolinkco/xenochat/internal/persona"
	"github.com/xenolinkco/xenochat/internal/store"
)

// toolGuidance is the static catalogue note appended to every system prompt.
// The full parameter schemas travel separately in the request's tool
// declarations.
const toolGuidance = "You have tools available: rollDice for dice rolls, " +
	"storeMemory to remember important details, retrieveMemories to recall " +
	"past details, and consultWorldbook for questions about the world and its " +
	"inhabitants. Use them when they help; never mention them to the user."

// assemblePrompt builds the system instruction for one turn. Identical
// inputs always produce identical output; optional blocks appear only when
// they have content.
func assemblePrompt(bot, character persona.Persona, memories []store.MemoryHit, lore []store.LoreHit) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s. %s", bot.Name, bot.Instructions)

	b.WriteString("\n\nHere is information about the user you are interacting with: ")
	b.WriteString(character.Instructions)

	if len(memories) > 0 {
		b.WriteString("\n\nHere are relevant memories from previous conversations:")
		for _, hit := range memories {
			b.WriteString("\n- ")
			b.WriteString(hit.Content)
		}
	}

	if len(lore) > 0 {
		b.WriteString("\n\nHere is relevant background about the world:")
		for _, hit := range lore {
			b.WriteString("\n- ")
			b.WriteString(hit.Content)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(toolGuidance)
	return b.String()
}
