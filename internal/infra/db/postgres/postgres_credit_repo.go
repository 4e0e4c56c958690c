package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
	"velvetink/internal/infra/metrics"
)

var _ repository.CreditTransactionRepository = (*CreditTransactionRepo)(nil)

// CreditTransactionRepo appends ledger rows. There is no update or delete
// surface on purpose.
type CreditTransactionRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewCreditTransactionRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *CreditTransactionRepo {
	return &CreditTransactionRepo{pool: pool, tm: tm}
}

func (r *CreditTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.CreditTransaction) error {
	const q = `
INSERT INTO credit_transactions (id, user_id, story_id, amount, type, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.UserID, t.StoryID, t.Amount, string(t.Type), t.Description, t.CreatedAt)
	if err == nil {
		metrics.IncCreditMutation(string(t.Type))
	}
	return err
}

func (r *CreditTransactionRepo) CountByTypeSince(ctx context.Context, tx repository.Tx, userID string, typ model.TransactionType, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*) FROM credit_transactions
 WHERE user_id=$1 AND type=$2 AND created_at >= $3;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, string(typ), since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SaveIfCountBelow is the guarded insert behind the UNLIMITED daily cap. The
// owning user row is locked FOR UPDATE so concurrent guarded inserts for the
// same user serialize; the count each one sees includes every earlier commit.
func (r *CreditTransactionRepo) SaveIfCountBelow(ctx context.Context, t *model.CreditTransaction, since time.Time, limit int) (bool, error) {
	saved := false
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		row, err := pickRow(ctx, r.pool, tx, `SELECT id FROM users WHERE id=$1 FOR UPDATE;`, t.UserID)
		if err != nil {
			return err
		}
		var id string
		if err := row.Scan(&id); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			return err
		}
		n, err := r.CountByTypeSince(ctx, tx, t.UserID, t.Type, since)
		if err != nil {
			return err
		}
		if n >= limit {
			return nil
		}
		if err := r.Save(ctx, tx, t); err != nil {
			return err
		}
		saved = true
		return nil
	})
	return saved, err
}

func (r *CreditTransactionRepo) SumAmounts(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	const q = `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return 0, err
	}
	var sum int
	if err := row.Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *CreditTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.CreditTransaction, error) {
	const q = `
SELECT id, user_id, story_id, amount, type, description, created_at
  FROM credit_transactions
 WHERE user_id=$1
 ORDER BY created_at DESC, id DESC
 OFFSET $2 LIMIT $3;`
	rows, err := pickRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &t.StoryID, &t.Amount, &typ, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = model.TransactionType(typ)
		out = append(out, &t)
	}
	return out, rows.Err()
}
