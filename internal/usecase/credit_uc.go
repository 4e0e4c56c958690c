package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
)

// Availability is the answer to "can this user spend a credit right now".
type Availability struct {
	Allowed   bool
	Reason    string
	Remaining int
	Tier      model.Tier
}

// CreditLedger owns every mutation of a user's credit balance. Each mutation
// is paired with exactly one CreditTransaction row so the ledger reconstructs
// the balance history.
type CreditLedger struct {
	users  repository.UserRepository
	ledger repository.CreditTransactionRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger

	now func() time.Time // injectable clock for daily-cap and reset tests
}

func NewCreditLedger(
	users repository.UserRepository,
	ledger repository.CreditTransactionRepository,
	tm repository.TransactionManager,
	log *zerolog.Logger,
) *CreditLedger {
	return &CreditLedger{users: users, ledger: ledger, tm: tm, log: log, now: time.Now}
}

// WithClock swaps the ledger's clock; tests only.
func (l *CreditLedger) WithClock(now func() time.Time) *CreditLedger {
	l.now = now
	return l
}

// AvailableCredits returns the user's spendable credit count, performing the
// lazy monthly reset first when it is due. UNLIMITED users get a derived
// daily allowance instead of a stored balance.
func (l *CreditLedger) AvailableCredits(ctx context.Context, userID string) (int, error) {
	user, err := l.users.FindByID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}

	if user.Tier == model.TierUnlimited {
		used, err := l.ledger.CountByTypeSince(ctx, nil, userID, model.TransactionStoryGeneration, startOfDayUTC(l.now()))
		if err != nil {
			return 0, err
		}
		if used >= model.UnlimitedDailyCap {
			return 0, nil
		}
		return model.UnlimitedSentinel, nil
	}

	if user.ResetDue(l.now()) {
		return l.resetMonthly(ctx, user)
	}
	return user.CreditBalance, nil
}

// CanGenerate wraps AvailableCredits with a tier-specific human-readable
// refusal reason when no credit is spendable.
func (l *CreditLedger) CanGenerate(ctx context.Context, userID string) (Availability, error) {
	user, err := l.users.FindByID(ctx, nil, userID)
	if err != nil {
		return Availability{}, err
	}
	remaining, err := l.AvailableCredits(ctx, userID)
	if err != nil {
		return Availability{}, err
	}

	av := Availability{Allowed: remaining > 0, Remaining: remaining, Tier: user.Tier}
	if av.Allowed {
		return av, nil
	}
	switch user.Tier {
	case model.TierUnlimited:
		av.Reason = fmt.Sprintf("You've reached today's limit of %d stories. New stories unlock tomorrow.", model.UnlimitedDailyCap)
	case model.TierFree:
		av.Reason = "You're out of credits. Subscribe to a plan to keep generating stories."
	default:
		av.Reason = "Your credit balance is used up. It refills at your next monthly reset."
	}
	return av, nil
}

// Debit spends exactly one credit for a story. It re-checks availability and
// returns false without mutation when insufficient. For stored-balance tiers
// the availability check and the decrement are a single conditional UPDATE at
// the storage layer, so two debits racing on the last credit cannot both win.
func (l *CreditLedger) Debit(ctx context.Context, userID, storyID string) (bool, error) {
	user, err := l.users.FindByID(ctx, nil, userID)
	if err != nil {
		return false, err
	}

	if user.Tier == model.TierUnlimited {
		// The daily cap is derived from the ledger; no stored balance changes.
		// The guarded insert makes the count check and the append one atomic
		// unit, so two debits racing on the last daily slot cannot both win.
		row, err := model.NewCreditTransaction(userID, -1, model.TransactionStoryGeneration, "story generation", &storyID)
		if err != nil {
			return false, err
		}
		return l.ledger.SaveIfCountBelow(ctx, row, startOfDayUTC(l.now()), model.UnlimitedDailyCap)
	}

	// Run the lazy reset before the debit so a due allotment is spendable.
	if user.ResetDue(l.now()) {
		if _, err := l.resetMonthly(ctx, user); err != nil {
			return false, err
		}
	}

	ok := false
	err = l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		won, err := l.users.DecrementBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !won {
			return nil // insufficient; commit nothing of interest
		}
		row, err := model.NewCreditTransaction(userID, -1, model.TransactionStoryGeneration, "story generation", &storyID)
		if err != nil {
			return err
		}
		if err := l.ledger.Save(ctx, tx, row); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

// Credit grants amount credits to the user and records the paired ledger row.
// Used for refunds (+1 REFUND) and subscription grants.
func (l *CreditLedger) Credit(ctx context.Context, userID string, amount int, typ model.TransactionType, description string, storyID *string) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	return l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := l.users.AddBalance(ctx, tx, userID, amount); err != nil {
			return err
		}
		row, err := model.NewCreditTransaction(userID, amount, typ, description, storyID)
		if err != nil {
			return err
		}
		return l.ledger.Save(ctx, tx, row)
	})
}

// resetMonthly sets the balance to the tier allotment, advances the reset
// timestamp past now, and records the grant when the allotment is positive.
func (l *CreditLedger) resetMonthly(ctx context.Context, user *model.User) (int, error) {
	allotment := user.MonthlyCredits
	next := *user.CreditsResetAt
	for !next.After(l.now()) {
		next = next.AddDate(0, 1, 0)
	}

	err := l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := l.users.SetBalance(ctx, tx, user.ID, allotment, &next); err != nil {
			return err
		}
		if allotment > 0 {
			row, err := model.NewCreditTransaction(user.ID, allotment, model.TransactionSubscription,
				fmt.Sprintf("monthly %s credits", user.Tier), nil)
			if err != nil {
				return err
			}
			return l.ledger.Save(ctx, tx, row)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.log.Info().Str("user_id", user.ID).Str("tier", string(user.Tier)).Int("allotment", allotment).Msg("monthly credits reset")
	user.CreditBalance = allotment
	user.CreditsResetAt = &next
	return allotment, nil
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
