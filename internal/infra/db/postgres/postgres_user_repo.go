package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `
id, email, display_name, password_hash, is_admin, tier,
credit_balance, credits_used, monthly_credits, credits_reset_at,
stripe_customer_id, stripe_subscription_id, stripe_price_id, current_period_end,
created_at, updated_at`

func (r *UserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	u.UpdatedAt = time.Now()
	const q = `
INSERT INTO users (
  id, email, display_name, password_hash, is_admin, tier,
  credit_balance, credits_used, monthly_credits, credits_reset_at,
  stripe_customer_id, stripe_subscription_id, stripe_price_id, current_period_end,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
  email=EXCLUDED.email, display_name=EXCLUDED.display_name,
  password_hash=EXCLUDED.password_hash, is_admin=EXCLUDED.is_admin,
  tier=EXCLUDED.tier, credit_balance=EXCLUDED.credit_balance,
  credits_used=EXCLUDED.credits_used, monthly_credits=EXCLUDED.monthly_credits,
  credits_reset_at=EXCLUDED.credits_reset_at,
  stripe_customer_id=EXCLUDED.stripe_customer_id,
  stripe_subscription_id=EXCLUDED.stripe_subscription_id,
  stripe_price_id=EXCLUDED.stripe_price_id,
  current_period_end=EXCLUDED.current_period_end,
  updated_at=EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.Email, u.DisplayName, u.PasswordHash, u.IsAdmin, string(u.Tier),
		u.CreditBalance, u.CreditsUsed, u.MonthlyCredits, u.CreditsResetAt,
		u.StripeCustomerID, u.StripeSubscriptionID, u.StripePriceID, u.CurrentPeriodEnd,
		u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *UserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.findBy(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return r.findBy(ctx, tx, `SELECT `+userColumns+` FROM users WHERE email=$1;`, email)
}

func (r *UserRepo) FindByStripeCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	return r.findBy(ctx, tx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id=$1;`, customerID)
}

func (r *UserRepo) findBy(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	var u model.User
	var tier string
	if err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsAdmin, &tier,
		&u.CreditBalance, &u.CreditsUsed, &u.MonthlyCredits, &u.CreditsResetAt,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.StripePriceID, &u.CurrentPeriodEnd,
		&u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.Tier = model.ParseTier(tier)
	return &u, nil
}

// DecrementBalance is the conditional one-credit debit. The WHERE guard makes
// the check and the spend a single atomic statement, so two debits racing on
// the last credit cannot both succeed.
func (r *UserRepo) DecrementBalance(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	const q = `
UPDATE users
   SET credit_balance = credit_balance - 1,
       credits_used   = credits_used + 1,
       updated_at     = now()
 WHERE id = $1 AND credit_balance >= 1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepo) AddBalance(ctx context.Context, tx repository.Tx, userID string, amount int) error {
	const q = `UPDATE users SET credit_balance = credit_balance + $2, updated_at = now() WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) SetBalance(ctx context.Context, tx repository.Tx, userID string, balance int, resetAt *time.Time) error {
	const q = `UPDATE users SET credit_balance = $2, credits_reset_at = $3, updated_at = now() WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, balance, resetAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetSubscription writes only the subscription columns. The balance columns
// stay untouched so this cannot clobber a concurrent ledger mutation.
func (r *UserRepo) SetSubscription(ctx context.Context, tx repository.Tx, userID string, tier model.Tier, monthlyCredits int, subscriptionID, priceID *string, periodEnd, resetAt *time.Time) error {
	const q = `
UPDATE users
   SET tier                   = $2,
       monthly_credits        = $3,
       stripe_subscription_id = $4,
       stripe_price_id        = $5,
       current_period_end     = $6,
       credits_reset_at       = $7,
       updated_at             = now()
 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, string(tier), monthlyCredits, subscriptionID, priceID, periodEnd, resetAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
