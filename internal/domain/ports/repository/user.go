package repository

import (
	"context"
	"time"

	"velvetink/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	FindByStripeCustomerID(ctx context.Context, tx Tx, customerID string) (*model.User, error)

	// DecrementBalance performs the conditional one-credit debit:
	// balance -= 1, credits_used += 1, only when balance >= 1.
	// Returns false without mutation when the guard fails. This is the
	// single atomic unit that keeps racing debits from double-spending.
	DecrementBalance(ctx context.Context, tx Tx, userID string) (bool, error)

	// AddBalance increments the balance by amount (refunds and grants).
	AddBalance(ctx context.Context, tx Tx, userID string, amount int) error

	// SetBalance overwrites the balance (monthly reset, renewal overwrite).
	SetBalance(ctx context.Context, tx Tx, userID string, balance int, resetAt *time.Time) error

	// SetSubscription persists tier, allotment and billing references without
	// touching the balance columns, so a debit landing while a webhook event
	// is being applied is never overwritten by a stale read.
	SetSubscription(ctx context.Context, tx Tx, userID string, tier model.Tier, monthlyCredits int, subscriptionID, priceID *string, periodEnd, resetAt *time.Time) error

	CountUsers(ctx context.Context, tx Tx) (int, error)
}
