// Package world renders the one-shot instruction that bootstraps a narrative
// from a genre and a seed prompt.
package world

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

// NarrativeLanguage is the language the model is told to narrate in.
const NarrativeLanguage = "Korean"

// MaxTurnChars is the soft length limit per narration turn.
const MaxTurnChars = 200

var worldTemplate = dedent.Dedent(`
	Create a game world for the genre "%s" built around this premise: "%s".
	Always write in %s. Keep each turn to about %d characters; it does not have to be exactly that long.
	Tell the player they may answer freely instead of picking one of the offered choices.
	Keep continuing the same story and never jump to an unrelated one.
	Open each turn with a short first-person description of the situation.
	The story advances according to the player's replies.
	Offer exactly three choices for the player to pick from.
	For each choice, show the player's chance of survival as a percentage.
	Always end the turn in first-person conversational form.
`)

// Render fills the template with genre and seed. Both are trimmed and set
// inside double quotes verbatim, so multi-line seed files keep their lines.
func Render(genre, seedPrompt string) string {
	return strings.TrimSpace(fmt.Sprintf(worldTemplate,
		strings.TrimSpace(genre),
		strings.TrimSpace(seedPrompt),
		NarrativeLanguage,
		MaxTurnChars,
	))
}

// Instruction wraps the rendered template as the single user message sent
// to the LLM.
func Instruction(genre, seedPrompt string) []chat.ChatMessage {
	return []chat.ChatMessage{
		{
			Role:    chat.ChatRoleUser,
			Content: Render(genre, seedPrompt),
		},
	}
}

// SeedMessage is how a generated narrative is stored in a conversation so
// that later chat turns keep the world as context.
func SeedMessage(narrative string) chat.ChatMessage {
	return chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: narrative,
	}
}
