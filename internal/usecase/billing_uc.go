package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
)

// Billing reasons as sent by the provider on invoices.
const (
	BillingReasonSubscriptionCreate = "subscription_create"
	BillingReasonSubscriptionCycle  = "subscription_cycle"
)

// CheckoutEvent is a completed one-time top-up purchase.
type CheckoutEvent struct {
	UserID      string // from checkout metadata
	Kind        string // "credit_topup"
	AmountCents int64
}

// SubscriptionEvent covers subscription created/updated callbacks.
type SubscriptionEvent struct {
	CustomerID     string
	SubscriptionID string
	PriceID        string
	AmountCents    int64
	PeriodEnd      time.Time
}

// InvoiceEvent covers invoice.paid / invoice.payment_failed callbacks.
type InvoiceEvent struct {
	CustomerID     string
	SubscriptionID string
	InvoiceID      string
	BillingReason  string
	AmountCents    int64
	PeriodEnd      time.Time
}

// BillingReconciler translates billing-provider webhook events into credit
// ledger mutations. Signature verification and event-id deduplication happen
// upstream in the webhook entry point; by the time an event lands here it is
// authentic and first-seen.
type BillingReconciler struct {
	users   repository.UserRepository
	ledger  *CreditLedger
	history repository.SubscriptionHistoryRepository
	tm      repository.TransactionManager
	prices  map[string]model.Tier
	log     *zerolog.Logger
}

// defaultPriceTiers maps provider price references onto internal tiers; the
// config may override or extend it.
var defaultPriceTiers = map[string]model.Tier{
	"price_starter_monthly":   model.TierStarter,
	"price_plus_monthly":      model.TierPlus,
	"price_unlimited_monthly": model.TierUnlimited,
}

func NewBillingReconciler(
	users repository.UserRepository,
	ledger *CreditLedger,
	history repository.SubscriptionHistoryRepository,
	tm repository.TransactionManager,
	priceOverrides map[string]model.Tier,
	log *zerolog.Logger,
) *BillingReconciler {
	prices := make(map[string]model.Tier, len(defaultPriceTiers)+len(priceOverrides))
	for k, v := range defaultPriceTiers {
		prices[k] = v
	}
	for k, v := range priceOverrides {
		prices[k] = v
	}
	return &BillingReconciler{users: users, ledger: ledger, history: history, tm: tm, prices: prices, log: log}
}

// HandleCheckoutCompleted grants the one-time top-up credit.
func (r *BillingReconciler) HandleCheckoutCompleted(ctx context.Context, ev CheckoutEvent) error {
	if ev.Kind != "credit_topup" {
		r.log.Debug().Str("kind", ev.Kind).Msg("ignoring non-topup checkout")
		return nil
	}
	if ev.UserID == "" {
		return domain.ErrInvalidArgument
	}
	if err := r.ledger.Credit(ctx, ev.UserID, 1, model.TransactionPurchase, "credit purchase", nil); err != nil {
		return err
	}
	r.log.Info().Str("user_id", ev.UserID).Msg("top-up credit granted")
	return nil
}

// HandleSubscriptionUpserted applies subscription created/updated events:
// persists tier, allotment and reset date, and grants the full monthly
// allotment only when newly subscribing or changing tier.
func (r *BillingReconciler) HandleSubscriptionUpserted(ctx context.Context, ev SubscriptionEvent) error {
	user, err := r.users.FindByStripeCustomerID(ctx, nil, ev.CustomerID)
	if err != nil {
		return err
	}

	tier, ok := r.prices[ev.PriceID]
	if !ok {
		r.log.Warn().Str("price_id", ev.PriceID).Msg("unknown price reference; ignoring subscription event")
		return nil
	}
	allotment := model.MonthlyAllotment(tier)

	isNew := user.StripeSubscriptionID == nil || *user.StripeSubscriptionID != ev.SubscriptionID
	tierChanged := user.Tier != tier

	// Only the subscription columns are written; the balance is left to the
	// ledger so a debit racing this event is not overwritten.
	periodEnd := ev.PeriodEnd
	if err := r.users.SetSubscription(ctx, nil, user.ID, tier, allotment,
		&ev.SubscriptionID, &ev.PriceID, &periodEnd, &periodEnd); err != nil {
		return err
	}

	if !isNew && !tierChanged {
		return nil
	}
	if allotment > 0 {
		if err := r.ledger.Credit(ctx, user.ID, allotment, model.TransactionSubscription,
			"subscription started: "+string(tier), nil); err != nil {
			return err
		}
	}
	hist, err := model.NewSubscriptionHistory(user.ID, tier, ev.AmountCents, nil)
	if err != nil {
		return err
	}
	if err := r.history.Save(ctx, nil, hist); err != nil {
		return err
	}
	r.log.Info().Str("user_id", user.ID).Str("tier", string(tier)).Bool("new", isNew).Msg("subscription reconciled")
	return nil
}

// HandleSubscriptionDeleted downgrades the user to FREE. Credits already
// granted do not evaporate on cancellation.
func (r *BillingReconciler) HandleSubscriptionDeleted(ctx context.Context, customerID string) error {
	user, err := r.users.FindByStripeCustomerID(ctx, nil, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log.Warn().Str("customer_id", customerID).Msg("subscription deleted for unknown customer")
			return nil
		}
		return err
	}
	// Downgrade the subscription columns only; the remaining balance stays.
	if err := r.users.SetSubscription(ctx, nil, user.ID, model.TierFree, 0, nil, nil, nil, nil); err != nil {
		return err
	}
	r.log.Info().Str("user_id", user.ID).Msg("subscription cancelled; downgraded to FREE")
	return nil
}

// HandleInvoicePaid records history for every subscription invoice and, on
// renewal cycles, overwrites the balance with the monthly allotment and
// advances the reset date. The first invoice's grant is handled by the
// subscription-created path.
func (r *BillingReconciler) HandleInvoicePaid(ctx context.Context, ev InvoiceEvent) error {
	if ev.SubscriptionID == "" {
		return nil // one-off invoices are not subscription business
	}
	user, err := r.users.FindByStripeCustomerID(ctx, nil, ev.CustomerID)
	if err != nil {
		return err
	}

	invoiceID := ev.InvoiceID
	hist, err := model.NewSubscriptionHistory(user.ID, user.Tier, ev.AmountCents, &invoiceID)
	if err != nil {
		return err
	}
	if err := r.history.Save(ctx, nil, hist); err != nil {
		return err
	}

	if ev.BillingReason != BillingReasonSubscriptionCycle {
		return nil
	}

	allotment := user.MonthlyCredits
	periodEnd := ev.PeriodEnd
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Re-read inside the transaction so the recorded delta matches the
		// overwrite actually applied.
		current, err := r.users.FindByID(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if err := r.users.SetBalance(ctx, tx, user.ID, allotment, &periodEnd); err != nil {
			return err
		}
		if delta := allotment - current.CreditBalance; delta != 0 {
			row, err := model.NewCreditTransaction(user.ID, delta, model.TransactionSubscription,
				"monthly renewal: "+string(user.Tier), nil)
			if err != nil {
				return err
			}
			if err := r.ledger.ledger.Save(ctx, tx, row); err != nil {
				return err
			}
		}
		r.log.Info().Str("user_id", user.ID).Int("allotment", allotment).Msg("renewal applied")
		return nil
	})
}

// HandleInvoiceFailed is notification-only; no ledger mutation.
func (r *BillingReconciler) HandleInvoiceFailed(ctx context.Context, ev InvoiceEvent) error {
	r.log.Warn().Str("customer_id", ev.CustomerID).Str("invoice_id", ev.InvoiceID).Msg("invoice payment failed")
	return nil
}
