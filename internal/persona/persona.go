// Package persona turns profile records into model-facing instructions.
// Rendering is deterministic: the same record always yields the same text,
// and every failure path lands on a fixed default persona so a broken
// profile can degrade a reply but never fail the conversation.
package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/xenolinkco/xenochat/internal/logging"
	"github.com/xenolinkco/xenochat/internal/store"
)

// Persona is a resolved identity: a display name plus the instruction text
// woven into the system prompt.
type Persona struct {
	Name         string
	Instructions string
}

// DefaultBot is used when the xenoprofile is missing, malformed, or
// unreadable.
func DefaultBot() Persona {
	return Persona{Name: "Default Bot", Instructions: "Be helpful and concise."}
}

// DefaultCharacter is used when the user's character record is missing,
// malformed, or unreadable. The caller-supplied display name survives.
func DefaultCharacter(fallbackName string) Persona {
	return Persona{Name: fallbackName, Instructions: "The user is talking to you."}
}

// renderable reports whether a record carries the fields rendering requires.
func renderable(p *store.Profile) bool {
	return p != nil && strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.Biography) != ""
}

func displayName(p *store.Profile) string {
	return strings.TrimSpace(p.Name + " " + p.Surname)
}

// RenderBot renders a xenoprofile in the second person, so the model speaks
// as the profile. The prompt assembler prepends the "You are <name>."
// opener, so the instructions start with the biography.
func RenderBot(p *store.Profile) Persona {
	if !renderable(p) {
		return DefaultBot()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Your biography states: %q. ", p.Biography)
	if p.Species != "" {
		sb.WriteString("You are a " + p.Species)
		if p.Subspecies != "" {
			sb.WriteString(" (" + p.Subspecies + ")")
		}
		sb.WriteString(". ")
	}
	if p.EarthAge > 0 {
		fmt.Fprintf(&sb, "You are %d Earth years old. ", p.EarthAge)
	}
	if p.Gender != "" {
		fmt.Fprintf(&sb, "Your gender is %s. ", p.Gender)
	}
	if p.Location != "" {
		fmt.Fprintf(&sb, "You are currently located in %s. ", p.Location)
	}
	if interests := splitInterests(p.Interests); len(interests) > 0 {
		fmt.Fprintf(&sb, "You are interested in %s. ", strings.Join(interests, ", "))
	}
	if p.Likes != "" {
		fmt.Fprintf(&sb, "You like %s. ", p.Likes)
	}
	if p.Dislikes != "" {
		fmt.Fprintf(&sb, "You dislike %s. ", p.Dislikes)
	}
	if p.LookingFor != "" {
		fmt.Fprintf(&sb, "You are looking for %s. ", p.LookingFor)
	}
	if p.Orientation != "" {
		fmt.Fprintf(&sb, "Your orientation is %s. ", p.Orientation)
	}
	if p.RedFlags != "" {
		fmt.Fprintf(&sb, "Some red flags for you are: %s. ", p.RedFlags)
	}
	sb.WriteString("IMPORTANT: Reply directly to the latest user message. ")
	sb.WriteString("Do not reply to previous user questions. ")
	sb.WriteString("Engage in conversation based on these characteristics. ")
	sb.WriteString("Behave like this character.")

	return Persona{Name: displayName(p), Instructions: strings.TrimSpace(sb.String())}
}

// RenderCharacter renders the user's character in the third person, so the
// model knows who it is talking to without adopting the identity.
func RenderCharacter(p *store.Profile, fallbackName string) Persona {
	if !renderable(p) {
		return DefaultCharacter(fallbackName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "They are playing the role of %s. ", displayName(p))
	fmt.Fprintf(&sb, "Their biography states: %q. ", p.Biography)
	if p.Species != "" {
		sb.WriteString("They are a " + p.Species)
		if p.Subspecies != "" {
			sb.WriteString(" (" + p.Subspecies + ")")
		}
		sb.WriteString(". ")
	}
	if p.EarthAge > 0 {
		fmt.Fprintf(&sb, "They are %d Earth years old. ", p.EarthAge)
	}
	if p.Gender != "" {
		fmt.Fprintf(&sb, "Their gender is %s. ", p.Gender)
	}
	if p.Location != "" {
		fmt.Fprintf(&sb, "They are currently located in %s. ", p.Location)
	}
	if interests := splitInterests(p.Interests); len(interests) > 0 {
		fmt.Fprintf(&sb, "They are interested in %s. ", strings.Join(interests, ", "))
	}
	if p.Likes != "" {
		fmt.Fprintf(&sb, "They like %s. ", p.Likes)
	}
	if p.Dislikes != "" {
		fmt.Fprintf(&sb, "They dislike %s. ", p.Dislikes)
	}
	if p.LookingFor != "" {
		fmt.Fprintf(&sb, "They are looking for %s. ", p.LookingFor)
	}
	if p.Orientation != "" {
		fmt.Fprintf(&sb, "Their orientation is %s. ", p.Orientation)
	}
	if p.RedFlags != "" {
		fmt.Fprintf(&sb, "Some red flags for them are: %s. ", p.RedFlags)
	}
	sb.WriteString("Engage in conversation with this character in mind.")

	return Persona{Name: displayName(p), Instructions: strings.TrimSpace(sb.String())}
}

func splitInterests(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ProfileSource is the slice of the store the resolver needs.
type ProfileSource interface {
	GetXenoprofile(ctx context.Context, id string) (*store.Profile, error)
	GetCharacter(ctx context.Context, userID, characterID string) (*store.Profile, error)
}

// Resolver fetches and renders personas, absorbing every failure into the
// fixed defaults.
type Resolver struct {
	profiles ProfileSource
}

func NewResolver(profiles ProfileSource) *Resolver {
	return &Resolver{profiles: profiles}
}

func (r *Resolver) ResolveBot(ctx context.Context, xenoprofileID string) Persona {
	p, err := r.profiles.GetXenoprofile(ctx, xenoprofileID)
	if err != nil {
		logging.L("persona").Infow("falling back to default bot persona",
			"xenoprofileId", xenoprofileID, "error", err)
		return DefaultBot()
	}
	return RenderBot(p)
}

func (r *Resolver) ResolveCharacter(ctx context.Context, userID, characterID, fallbackName string) Persona {
	p, err := r.profiles.GetCharacter(ctx, userID, characterID)
	if err != nil {
		logging.L("persona").Infow("falling back to default character persona",
			"userId", userID, "characterId", characterID, "error", err)
		return DefaultCharacter(fallbackName)
	}
	return RenderCharacter(p, fallbackName)
}
