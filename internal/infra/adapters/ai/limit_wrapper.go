package ai

import (
	"context"

	"velvetink/internal/domain/ports/adapter"
)

var _ adapter.TextGenerator = (*limitedText)(nil)

type limitedText struct {
	inner adapter.TextGenerator
	sem   chan struct{}
}

// NewLimitedText caps concurrent in-flight generations across all workers.
func NewLimitedText(inner adapter.TextGenerator, maxConcurrent int) adapter.TextGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedText{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedText) Name() string { return l.inner.Name() }

func (l *limitedText) Generate(ctx context.Context, req adapter.GenerationRequest) (string, adapter.Usage, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, req)
}

var _ adapter.ImageGenerator = (*limitedImage)(nil)

type limitedImage struct {
	inner adapter.ImageGenerator
	sem   chan struct{}
}

func NewLimitedImage(inner adapter.ImageGenerator, maxConcurrent int) adapter.ImageGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedImage{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedImage) GenerateImage(ctx context.Context, prompt string) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.GenerateImage(ctx, prompt)
}
