package ai

import (
	"context"
	"strings"
	"time"

	"velvetink/internal/domain/ports/adapter"
)

var (
	_ adapter.TextGenerator  = (*NoopGenerator)(nil)
	_ adapter.ImageGenerator = (*NoopGenerator)(nil)
)

// NoopGenerator produces a canned, well-formed story for local development so
// the whole pipeline can run without provider credentials.
type NoopGenerator struct{}

func NewNoopGenerator() *NoopGenerator { return &NoopGenerator{} }

func (n *NoopGenerator) Name() string { return "noop" }

func (n *NoopGenerator) Generate(ctx context.Context, req adapter.GenerationRequest) (string, adapter.Usage, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}

	body := strings.Repeat("The rain had not let up since morning, and neither had her resolve. ", 40)
	out := "TITLE: The Lighthouse Keeper's Promise\n" +
		"AUTHOR: Penny Lane\n" +
		"TAGS: coastal, second-chance, slow-burn\n" +
		"SUMMARY: She came back for the lighthouse. She stayed for him.\n" +
		"STORY:\n" + body
	return out, adapter.Usage{PromptTokens: 50, CompletionTokens: 600, TotalTokens: 650}, nil
}

func (n *NoopGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "https://covers.invalid/noop.png", nil
}
