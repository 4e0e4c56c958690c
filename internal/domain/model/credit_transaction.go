package model

import (
	"time"

	"velvetink/internal/domain"

	"github.com/oklog/ulid/v2"
)

type TransactionType string

const (
	TransactionPurchase        TransactionType = "PURCHASE"
	TransactionSubscription    TransactionType = "SUBSCRIPTION"
	TransactionStoryGeneration TransactionType = "STORY_GENERATION"
	TransactionRefund          TransactionType = "REFUND"
)

// CreditTransaction is an append-only ledger row. Rows are never updated or
// deleted; the sum of amounts per user must reconstruct the balance history.
// ULIDs keep the ledger lexicographically ordered by creation time.
type CreditTransaction struct {
	ID          string
	UserID      string
	StoryID     *string
	Amount      int // positive = grant, negative = debit
	Type        TransactionType
	Description string
	CreatedAt   time.Time
}

func NewCreditTransaction(userID string, amount int, typ TransactionType, description string, storyID *string) (*CreditTransaction, error) {
	if userID == "" || amount == 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch typ {
	case TransactionPurchase, TransactionSubscription, TransactionStoryGeneration, TransactionRefund:
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &CreditTransaction{
		ID:          ulid.Make().String(),
		UserID:      userID,
		StoryID:     storyID,
		Amount:      amount,
		Type:        typ,
		Description: description,
		CreatedAt:   time.Now(),
	}, nil
}
