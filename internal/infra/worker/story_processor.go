package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/adapter"
	"velvetink/internal/domain/ports/repository"
	"velvetink/internal/infra/logging"
	"velvetink/internal/infra/metrics"
	"velvetink/internal/storygen"
)

// CreditRefunder is the slice of the ledger the processor needs to give a
// credit back when generation fails.
type CreditRefunder interface {
	Credit(ctx context.Context, userID string, amount int, typ model.TransactionType, description string, storyID *string) error
}

// StoryProcessor drains the pending-story queue. Each claimed story is driven
// to a terminal status in one pass: prompt, generate, parse, derive, save.
type StoryProcessor struct {
	stories  repository.StoryRepository
	refunder CreditRefunder
	textGen  adapter.TextGenerator
	imageGen adapter.ImageGenerator
	builder  *storygen.Builder
	poll     time.Duration
	log      *zerolog.Logger
}

func NewStoryProcessor(
	stories repository.StoryRepository,
	refunder CreditRefunder,
	textGen adapter.TextGenerator,
	imageGen adapter.ImageGenerator,
	builder *storygen.Builder,
	pollInterval time.Duration,
	log *zerolog.Logger,
) *StoryProcessor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &StoryProcessor{
		stories:  stories,
		refunder: refunder,
		textGen:  textGen,
		imageGen: imageGen,
		builder:  builder,
		poll:     pollInterval,
		log:      log,
	}
}

// Start runs the claim loop. This should be run in a goroutine.
func (p *StoryProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("story processor started")
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("story processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.ProcessOne(ctx)
				return nil
			})
		}
	}
}

// ProcessOne claims at most one pending story and drives it to a terminal
// state. A quiet return means the queue was empty.
func (p *StoryProcessor) ProcessOne(ctx context.Context) {
	story, err := p.stories.FetchAndMarkGenerating(ctx)
	if err != nil {
		if err != domain.ErrNotFound {
			p.log.Error().Err(err).Msg("failed to claim pending story")
		}
		return
	}

	ctx = logging.WithStoryID(ctx, story.ID)
	l := logging.With(ctx, p.log)
	l.Info().Int("chapter", story.Chapter).Msg("generating story")
	start := time.Now()

	err = p.generate(ctx, story)

	status := model.StoryStatusCompleted
	if err != nil {
		status = model.StoryStatusFailed
		story.LastError = err.Error()
		l.Error().Err(err).Msg("story generation failed")
	}
	story.Status = status
	story.UpdatedAt = time.Now()

	// Terminal save must survive a cancelled claim context.
	if serr := p.stories.Save(context.Background(), nil, story); serr != nil {
		l.Error().Err(serr).Msg("could not persist terminal story state")
	}
	if err != nil {
		p.refund(story)
	}

	elapsed := time.Since(start)
	metrics.ObserveStoryProcessed(string(status), elapsed.Seconds())
	l.Info().Str("status", string(status)).Dur("duration", elapsed).Msg("story finished")
}

// generate fills in the story's output fields, or returns the failure reason.
func (p *StoryProcessor) generate(ctx context.Context, story *model.Story) error {
	prompt, err := p.buildPrompt(ctx, story)
	if err != nil {
		return err
	}

	req := adapter.GenerationRequest{
		System: p.builder.System(),
		Prompt: prompt,
		// Rough words-to-tokens headroom so the target length fits.
		MaxTokens:   story.Params.Length.TargetWords() * 2,
		Temperature: 0.9,
	}
	raw, usage, err := p.textGen.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("text generation: %w", err)
	}

	parsed, err := storygen.Parse(raw)
	if err != nil {
		metrics.IncStorySalvage("unparsable")
		return fmt.Errorf("parse response: %w", err)
	}
	metrics.IncStorySalvage(parsed.Salvage)

	story.Title = parsed.Title
	story.Author = parsed.Author
	story.Summary = parsed.Summary
	story.Tags = parsed.Tags
	story.Body = parsed.Body
	story.WordCount = storygen.CountWords(parsed.Body)
	story.ReadingMinutes = model.ReadingTime(story.WordCount)
	story.ContentRating = story.Params.HeatLevel.ContentRating()

	if story.Params.WantCover && p.imageGen != nil {
		// Cover failures never fail the story.
		url, cerr := p.imageGen.GenerateImage(ctx, storygen.CoverPrompt(story.Title, story.Params.Genre))
		if cerr != nil {
			logging.With(ctx, p.log).Warn().Err(cerr).Msg("cover generation failed, continuing without")
		} else {
			story.CoverImageURL = url
		}
	}

	logging.With(ctx, p.log).Debug().
		Int("tokens_total", usage.TotalTokens).
		Int("words", story.WordCount).
		Str("salvage", parsed.Salvage).
		Msg("story generated")
	return nil
}

func (p *StoryProcessor) buildPrompt(ctx context.Context, story *model.Story) (string, error) {
	if story.ParentID == nil {
		return p.builder.Build(story.Params), nil
	}
	parent, err := p.stories.FindByID(ctx, nil, *story.ParentID)
	if err != nil {
		return "", fmt.Errorf("load parent story: %w", err)
	}
	return p.builder.BuildContinuation(story.Params, parent.Title, parent.Body, story.Chapter), nil
}

// refund gives the spent credit back after a failed generation. Extensions
// never cost a credit, so only first chapters of user stories are refunded.
func (p *StoryProcessor) refund(story *model.Story) {
	if story.UserID == nil || story.Chapter != 1 {
		return
	}
	ctx := context.Background()
	err := p.refunder.Credit(ctx, *story.UserID, 1, model.TransactionRefund, "generation failed", &story.ID)
	if err != nil {
		p.log.Error().Err(err).Str("story_id", story.ID).Msg("could not refund failed generation")
	}
}
