package repository

import (
	"context"

	"velvetink/internal/domain/model"
)

type SubscriptionHistoryRepository interface {
	Save(ctx context.Context, tx Tx, h *model.SubscriptionHistory) error
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.SubscriptionHistory, error)
}
