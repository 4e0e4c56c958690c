package storygen

import (
	"fmt"
	"strings"

	"velvetink/internal/domain/model"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// ContinuationTokenBudget caps how much of a parent story is replayed as
	// context when generating the next chapter. Keeps long books from
	// blowing past the provider context window.
	ContinuationTokenBudget = 6000

	// approxCharsPerToken is the heuristic used when the BPE tables are
	// unavailable (offline environments).
	approxCharsPerToken = 4

	systemPrompt = "You are a best-selling romance novelist. You always answer with exactly " +
		"these sections, each on its own line: TITLE:, AUTHOR:, SUMMARY:, TAGS:, STORY:. " +
		"TAGS is a comma-separated list. Everything after STORY: is the full story text."
)

// Builder renders generation prompts from stored story parameters.
type Builder struct {
	enc *tiktoken.Tiktoken
}

// NewBuilder loads the cl100k_base encoding for token budgeting. Loading the
// BPE tables is best-effort: without them the builder falls back to a
// character heuristic instead of failing startup.
func NewBuilder() *Builder {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Builder{enc: enc}
}

func (b *Builder) System() string { return systemPrompt }

// Build renders the user prompt for a fresh story.
func (b *Builder) Build(p model.StoryParams) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %s romance story of approximately %d words.\n", p.Genre, p.Length.TargetWords())
	fmt.Fprintf(&sb, "Heat level: %s.\n", p.HeatLevel)
	fmt.Fprintf(&sb, "Tropes to weave in: %s.\n", strings.Join(p.Tropes, ", "))
	if len(p.CharacterNames) > 0 {
		fmt.Fprintf(&sb, "Main characters: %s.\n", strings.Join(p.CharacterNames, ", "))
	}
	if p.Scenario != "" {
		fmt.Fprintf(&sb, "Scenario requested by the reader: %s\n", p.Scenario)
	}
	return sb.String()
}

// BuildContinuation renders the prompt for a chapter extension, embedding the
// parent's full output as context, truncated to the token budget.
func (b *Builder) BuildContinuation(p model.StoryParams, parentTitle, parentBody string, chapter int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Continue the romance story %q with chapter %d.\n", parentTitle, chapter)
	fmt.Fprintf(&sb, "Keep the same genre (%s), heat level (%s) and tropes (%s).\n",
		p.Genre, p.HeatLevel, strings.Join(p.Tropes, ", "))
	fmt.Fprintf(&sb, "Aim for approximately %d words.\n", p.Length.TargetWords())
	sb.WriteString("The story so far:\n---\n")
	sb.WriteString(b.truncateToBudget(parentBody, ContinuationTokenBudget))
	sb.WriteString("\n---\nWrite only the next chapter, in the same section format.")
	return sb.String()
}

// CoverPrompt renders the prompt for the optional cover-image step.
func CoverPrompt(title, genre string) string {
	return fmt.Sprintf("Romance novel cover illustration for %q, %s setting, painted style, no text", title, genre)
}

// CountTokens reports how many tokens a text costs, best-effort.
func (b *Builder) CountTokens(text string) int {
	if b.enc == nil {
		return len(text) / approxCharsPerToken
	}
	return len(b.enc.Encode(text, nil, nil))
}

func (b *Builder) truncateToBudget(text string, budget int) string {
	if b.enc == nil {
		limit := budget * approxCharsPerToken
		if len(text) <= limit {
			return text
		}
		// Keep the tail: the most recent prose matters most for continuation.
		return text[len(text)-limit:]
	}
	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return b.enc.Decode(tokens[len(tokens)-budget:])
}
