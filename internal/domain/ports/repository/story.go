package repository

import (
	"context"

	"velvetink/internal/domain/model"
)

type StoryRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Story) error
	Delete(ctx context.Context, tx Tx, id string) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Story, error)

	// FetchAndMarkGenerating atomically claims the oldest pending story and
	// flips it to 'generating'. The conditional transition is the
	// single-execution guard: a story is claimed at most once.
	FetchAndMarkGenerating(ctx context.Context) (*model.Story, error)

	// MaxChapter returns the highest chapter number among the parent and its
	// extensions (>= 1 when the parent exists).
	MaxChapter(ctx context.Context, tx Tx, parentID string) (int, error)

	ListPublished(ctx context.Context, tx Tx, offset, limit int) ([]*model.Story, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.Story, error)
}
