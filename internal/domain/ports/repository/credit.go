package repository

import (
	"context"
	"time"

	"velvetink/internal/domain/model"
)

type CreditTransactionRepository interface {
	// Save appends a ledger row; rows are never updated or deleted.
	Save(ctx context.Context, tx Tx, t *model.CreditTransaction) error

	// CountByTypeSince counts a user's rows of the given type created at or
	// after the cutoff. Used for the UNLIMITED daily cap.
	CountByTypeSince(ctx context.Context, tx Tx, userID string, typ model.TransactionType, since time.Time) (int, error)

	// SaveIfCountBelow appends the row only while the user's count of rows of
	// the same type created at or after the cutoff is below limit. The count
	// and the insert are one atomic unit at the storage layer, so concurrent
	// inserts racing on the last slot cannot both win. Returns false without
	// insert when the limit is reached.
	SaveIfCountBelow(ctx context.Context, t *model.CreditTransaction, since time.Time, limit int) (bool, error)

	// SumAmounts returns the signed sum of all of a user's ledger rows.
	SumAmounts(ctx context.Context, tx Tx, userID string) (int, error)

	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.CreditTransaction, error)
}
