package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
)

var _ repository.SubscriptionHistoryRepository = (*SubscriptionHistoryRepo)(nil)

type SubscriptionHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionHistoryRepo(pool *pgxpool.Pool) *SubscriptionHistoryRepo {
	return &SubscriptionHistoryRepo{pool: pool}
}

func (r *SubscriptionHistoryRepo) Save(ctx context.Context, tx repository.Tx, h *model.SubscriptionHistory) error {
	const q = `
INSERT INTO subscription_history (id, user_id, tier, stripe_invoice_id, amount_cents, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q,
		h.ID, h.UserID, string(h.Tier), h.StripeInvoiceID, h.AmountCents, h.CreatedAt)
	return err
}

func (r *SubscriptionHistoryRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.SubscriptionHistory, error) {
	const q = `
SELECT id, user_id, tier, stripe_invoice_id, amount_cents, created_at
  FROM subscription_history
 WHERE user_id=$1
 ORDER BY created_at DESC
 OFFSET $2 LIMIT $3;`
	rows, err := pickRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SubscriptionHistory
	for rows.Next() {
		var h model.SubscriptionHistory
		var tier string
		if err := rows.Scan(&h.ID, &h.UserID, &tier, &h.StripeInvoiceID, &h.AmountCents, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Tier = model.ParseTier(tier)
		out = append(out, &h)
	}
	return out, rows.Err()
}
