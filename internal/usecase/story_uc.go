package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
	"velvetink/internal/infra/metrics"
)

// SubmitResult is returned to the caller immediately; generation itself runs
// asynchronously and is observed through Status polling.
type SubmitResult struct {
	Story            *model.Story
	CreditsRemaining int
}

// StatusView is the thin read surface polled by clients until a terminal
// status is observed.
type StatusView struct {
	ID     string
	Status model.StoryStatus
	Error  string
	Title  string
}

// StoryService owns the synchronous half of the generation lifecycle: submit
// (create + debit), status reads, chapter extensions and library listings.
// The asynchronous half lives in the worker, which claims pending rows.
type StoryService struct {
	stories repository.StoryRepository
	ledger  *CreditLedger
	log     *zerolog.Logger
}

func NewStoryService(stories repository.StoryRepository, ledger *CreditLedger, log *zerolog.Logger) *StoryService {
	return &StoryService{stories: stories, ledger: ledger, log: log}
}

// Submit validates the request, checks and spends a credit, and enqueues the
// story by persisting it as pending. It never blocks on generation: the
// pending row is the durable queue entry the worker picks up.
func (s *StoryService) Submit(ctx context.Context, userID string, params model.StoryParams) (*SubmitResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	av, err := s.ledger.CanGenerate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !av.Allowed {
		metrics.IncDebitRefused(string(av.Tier))
		return nil, fmt.Errorf("%s: %w", av.Reason, domain.ErrInsufficientCredits)
	}

	story, err := model.NewStory(userID, params)
	if err != nil {
		return nil, err
	}
	if err := s.stories.Save(ctx, nil, story); err != nil {
		return nil, err
	}

	ok, err := s.ledger.Debit(ctx, userID, story.ID)
	if err != nil {
		_ = s.stories.Delete(ctx, nil, story.ID)
		return nil, err
	}
	if !ok {
		// Lost the race for the last credit: undo the enqueue.
		if derr := s.stories.Delete(ctx, nil, story.ID); derr != nil {
			s.log.Error().Err(derr).Str("story_id", story.ID).Msg("could not delete story after failed debit")
		}
		metrics.IncDebitRefused(string(av.Tier))
		return nil, fmt.Errorf("%s: %w", av.Reason, domain.ErrInsufficientCredits)
	}

	remaining, err := s.ledger.AvailableCredits(ctx, userID)
	if err != nil {
		// The story is submitted either way; report a conservative count.
		remaining = av.Remaining - 1
	}

	metrics.IncStorySubmitted(string(story.Params.Length))
	s.log.Info().Str("story_id", story.ID).Str("user_id", userID).Int("credits_remaining", remaining).Msg("story submitted")
	return &SubmitResult{Story: story, CreditsRemaining: remaining}, nil
}

// Status returns the polled fields for a story. User-owned stories are only
// visible to their owner or an administrator.
func (s *StoryService) Status(ctx context.Context, callerID string, isAdmin bool, storyID string) (StatusView, error) {
	story, err := s.stories.FindByID(ctx, nil, storyID)
	if err != nil {
		return StatusView{}, err
	}
	if story.UserID != nil && *story.UserID != callerID && !isAdmin {
		return StatusView{}, domain.ErrForbidden
	}
	return StatusView{ID: story.ID, Status: story.Status, Error: story.LastError, Title: story.Title}, nil
}

// Get returns the full story. Published curated stories are public; custom
// stories require ownership or admin.
func (s *StoryService) Get(ctx context.Context, callerID string, isAdmin bool, storyID string) (*model.Story, error) {
	story, err := s.stories.FindByID(ctx, nil, storyID)
	if err != nil {
		return nil, err
	}
	if story.Published {
		return story, nil
	}
	if story.UserID != nil && *story.UserID == callerID {
		return story, nil
	}
	if isAdmin {
		return story, nil
	}
	return nil, domain.ErrForbidden
}

// Extend creates the next chapter of a completed story. The child carries the
// parent's generation params and is numbered from the highest existing
// extension (first extension = chapter 2). Extensions do not consume a
// credit.
func (s *StoryService) Extend(ctx context.Context, callerID string, isAdmin bool, parentID string) (*model.Story, error) {
	parent, err := s.stories.FindByID(ctx, nil, parentID)
	if err != nil {
		return nil, err
	}
	if parent.UserID != nil && *parent.UserID != callerID && !isAdmin {
		return nil, domain.ErrForbidden
	}
	if parent.Status != model.StoryStatusCompleted {
		return nil, domain.ErrNotCompleted
	}

	maxChapter, err := s.stories.MaxChapter(ctx, nil, parent.ID)
	if err != nil {
		return nil, err
	}
	if maxChapter < 1 {
		maxChapter = 1
	}
	child, err := model.NewChapter(parent, maxChapter+1)
	if err != nil {
		return nil, err
	}
	if err := s.stories.Save(ctx, nil, child); err != nil {
		return nil, err
	}
	s.log.Info().Str("parent_id", parent.ID).Str("story_id", child.ID).Int("chapter", child.Chapter).Msg("chapter extension submitted")
	return child, nil
}

// Library lists published curated stories for browsing.
func (s *StoryService) Library(ctx context.Context, offset, limit int) ([]*model.Story, error) {
	return s.stories.ListPublished(ctx, nil, offset, limit)
}

// ListMine lists the caller's own stories, newest first.
func (s *StoryService) ListMine(ctx context.Context, userID string, offset, limit int) ([]*model.Story, error) {
	return s.stories.ListByUser(ctx, nil, userID, offset, limit)
}
