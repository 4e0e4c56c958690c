package model

import (
	"time"

	"velvetink/internal/domain"

	"github.com/google/uuid"
)

// SubscriptionHistory is the append-only audit trail of billing events, one
// row per initial subscription or renewal invoice.
type SubscriptionHistory struct {
	ID              string
	UserID          string
	Tier            Tier
	StripeInvoiceID *string
	AmountCents     int64
	CreatedAt       time.Time
}

func NewSubscriptionHistory(userID string, tier Tier, amountCents int64, invoiceID *string) (*SubscriptionHistory, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionHistory{
		ID:              uuid.NewString(),
		UserID:          userID,
		Tier:            tier,
		StripeInvoiceID: invoiceID,
		AmountCents:     amountCents,
		CreatedAt:       time.Now(),
	}, nil
}
