package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
)

var _ repository.StoryRepository = (*StoryRepo)(nil)

// StoryRepo persists stories. Generation params are stored as a JSONB blob so
// the worker replays exactly what was submitted.
type StoryRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewStoryRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *StoryRepo {
	return &StoryRepo{pool: pool, tm: tm}
}

const storyColumns = `
id, user_id, status, last_error, is_custom, published, params,
title, author, summary, tags, body, cover_image_url,
word_count, reading_minutes, content_rating,
parent_id, chapter, created_at, updated_at`

func (r *StoryRepo) Save(ctx context.Context, tx repository.Tx, s *model.Story) error {
	s.UpdatedAt = time.Now()
	params, err := json.Marshal(s.Params)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO stories (
  id, user_id, status, last_error, is_custom, published, params,
  title, author, summary, tags, body, cover_image_url,
  word_count, reading_minutes, content_rating,
  parent_id, chapter, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  status=EXCLUDED.status, last_error=EXCLUDED.last_error,
  published=EXCLUDED.published, params=EXCLUDED.params,
  title=EXCLUDED.title, author=EXCLUDED.author, summary=EXCLUDED.summary,
  tags=EXCLUDED.tags, body=EXCLUDED.body, cover_image_url=EXCLUDED.cover_image_url,
  word_count=EXCLUDED.word_count, reading_minutes=EXCLUDED.reading_minutes,
  content_rating=EXCLUDED.content_rating, updated_at=EXCLUDED.updated_at;`
	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, string(s.Status), s.LastError, s.IsCustom, s.Published, params,
		s.Title, s.Author, s.Summary, s.Tags, s.Body, s.CoverImageURL,
		s.WordCount, s.ReadingMinutes, s.ContentRating,
		s.ParentID, s.Chapter, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *StoryRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM stories WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *StoryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Story, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+storyColumns+` FROM stories WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanStory(row)
}

// FetchAndMarkGenerating claims the oldest pending story inside a transaction.
// FOR UPDATE SKIP LOCKED lets concurrent workers claim disjoint rows without
// blocking, and the status flip inside the same transaction guarantees each
// story is handed out at most once.
func (r *StoryRepo) FetchAndMarkGenerating(ctx context.Context) (*model.Story, error) {
	var story *model.Story

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + storyColumns + `
  FROM stories
 WHERE status = 'pending'
 ORDER BY created_at
 LIMIT 1
 FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		claimed, err := scanStory(row)
		if err != nil {
			return err
		}

		claimed.Status = model.StoryStatusGenerating
		if err := r.Save(ctx, tx, claimed); err != nil {
			return err
		}
		story = claimed
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return story, err
}

func (r *StoryRepo) MaxChapter(ctx context.Context, tx repository.Tx, parentID string) (int, error) {
	const q = `SELECT COALESCE(MAX(chapter), 0) FROM stories WHERE id=$1 OR parent_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, parentID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *StoryRepo) ListPublished(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Story, error) {
	const q = `
SELECT ` + storyColumns + `
  FROM stories
 WHERE published = TRUE AND status = 'completed'
 ORDER BY created_at DESC
 OFFSET $1 LIMIT $2;`
	return r.list(ctx, tx, q, offset, limit)
}

func (r *StoryRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Story, error) {
	const q = `
SELECT ` + storyColumns + `
  FROM stories
 WHERE user_id = $1
 ORDER BY created_at DESC
 OFFSET $2 LIMIT $3;`
	return r.list(ctx, tx, q, userID, offset, limit)
}

func (r *StoryRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Story, error) {
	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStory(row pgx.Row) (*model.Story, error) {
	var s model.Story
	var status string
	var params []byte
	if err := row.Scan(
		&s.ID, &s.UserID, &status, &s.LastError, &s.IsCustom, &s.Published, &params,
		&s.Title, &s.Author, &s.Summary, &s.Tags, &s.Body, &s.CoverImageURL,
		&s.WordCount, &s.ReadingMinutes, &s.ContentRating,
		&s.ParentID, &s.Chapter, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.StoryStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &s.Params); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &s, nil
}
