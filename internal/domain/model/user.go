package model

import (
	"strings"
	"time"

	"velvetink/internal/domain"

	"github.com/google/uuid"
)

type Tier string

const (
	TierFree      Tier = "FREE"
	TierStarter   Tier = "STARTER"
	TierPlus      Tier = "PLUS"
	TierUnlimited Tier = "UNLIMITED"
)

const (
	// UnlimitedDailyCap is how many stories an UNLIMITED user may generate
	// per calendar day (UTC).
	UnlimitedDailyCap = 2

	// UnlimitedSentinel is reported as the remaining balance for UNLIMITED
	// users who are still under their daily cap.
	UnlimitedSentinel = 9999

	// WelcomeCredits is granted once at signup.
	WelcomeCredits = 1
)

// MonthlyAllotment returns the fixed monthly credit grant for a tier.
func MonthlyAllotment(t Tier) int {
	switch t {
	case TierStarter:
		return 3
	case TierPlus:
		return 10
	default:
		return 0
	}
}

// ParseTier maps a stored tier string onto a known tier, defaulting to FREE.
func ParseTier(s string) Tier {
	switch Tier(strings.ToUpper(s)) {
	case TierStarter:
		return TierStarter
	case TierPlus:
		return TierPlus
	case TierUnlimited:
		return TierUnlimited
	default:
		return TierFree
	}
}

// User is a domain entity holding identity plus billing/credit state.
// The credit balance is only ever mutated through the ledger so that every
// delta has a paired CreditTransaction row.
type User struct {
	ID             string
	Email          string
	DisplayName    string
	PasswordHash   string
	IsAdmin        bool
	Tier           Tier
	CreditBalance  int
	CreditsUsed    int
	MonthlyCredits int
	CreditsResetAt *time.Time

	StripeCustomerID     *string
	StripeSubscriptionID *string
	StripePriceID        *string
	CurrentPeriodEnd     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewUser(id, email, displayName, passwordHash string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	if passwordHash == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	// The balance starts at zero; the welcome credit is granted through the
	// ledger so even the first balance has a paired transaction row.
	return &User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Tier:         TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// ResetDue reports whether the lazy monthly reset should run.
func (u *User) ResetDue(now time.Time) bool {
	return u.CreditsResetAt != nil && now.After(*u.CreditsResetAt)
}
