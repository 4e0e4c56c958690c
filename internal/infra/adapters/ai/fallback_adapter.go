package ai

import (
	"context"

	"github.com/rs/zerolog"

	"velvetink/internal/domain/ports/adapter"
	"velvetink/internal/infra/metrics"
)

var _ adapter.TextGenerator = (*FallbackGenerator)(nil)

// FallbackGenerator tries the primary provider and, on any error, retries the
// same request against the fallback. A context already cancelled is not worth
// retrying.
type FallbackGenerator struct {
	primary  adapter.TextGenerator
	fallback adapter.TextGenerator
	log      *zerolog.Logger
}

func NewFallbackGenerator(primary, fallback adapter.TextGenerator, log *zerolog.Logger) *FallbackGenerator {
	return &FallbackGenerator{primary: primary, fallback: fallback, log: log}
}

func (f *FallbackGenerator) Name() string { return f.primary.Name() }

func (f *FallbackGenerator) Generate(ctx context.Context, req adapter.GenerationRequest) (string, adapter.Usage, error) {
	text, usage, err := f.primary.Generate(ctx, req)
	if err == nil {
		return text, usage, nil
	}
	if f.fallback == nil || ctx.Err() != nil {
		return "", adapter.Usage{}, err
	}

	f.log.Warn().Err(err).
		Str("primary", f.primary.Name()).
		Str("fallback", f.fallback.Name()).
		Msg("primary text provider failed, retrying on fallback")
	metrics.IncFallback(f.fallback.Name())
	return f.fallback.Generate(ctx, req)
}
