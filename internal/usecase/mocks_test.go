//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- TransactionManager ---

// MockTxManager runs the callback without a real transaction; the in-memory
// repos below are already atomic under their own mutexes.
type MockTxManager struct{}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// --- UserRepository ---

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	SaveFunc func(ctx context.Context, tx repository.Tx, u *model.User) error
}

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{users: map[string]*model.User{}}
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) FindByStripeCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) DecrementBalance(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.CreditBalance < 1 {
		return false, nil
	}
	u.CreditBalance--
	u.CreditsUsed++
	return true, nil
}

func (m *MockUserRepo) AddBalance(ctx context.Context, tx repository.Tx, userID string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.CreditBalance += amount
	return nil
}

func (m *MockUserRepo) SetBalance(ctx context.Context, tx repository.Tx, userID string, balance int, resetAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.CreditBalance = balance
	u.CreditsResetAt = resetAt
	return nil
}

func (m *MockUserRepo) SetSubscription(ctx context.Context, tx repository.Tx, userID string, tier model.Tier, monthlyCredits int, subscriptionID, priceID *string, periodEnd, resetAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Tier = tier
	u.MonthlyCredits = monthlyCredits
	u.StripeSubscriptionID = subscriptionID
	u.StripePriceID = priceID
	u.CurrentPeriodEnd = periodEnd
	u.CreditsResetAt = resetAt
	return nil
}

func (m *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

// Balance is a test helper reading the live stored balance.
func (m *MockUserRepo) Balance(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].CreditBalance
}

// --- StoryRepository ---

type MockStoryRepo struct {
	mu      sync.Mutex
	stories map[string]*model.Story
}

func NewMockStoryRepo() *MockStoryRepo {
	return &MockStoryRepo{stories: map[string]*model.Story{}}
}

func (m *MockStoryRepo) Save(ctx context.Context, tx repository.Tx, s *model.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stories[s.ID] = &cp
	return nil
}

func (m *MockStoryRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stories[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.stories, id)
	return nil
}

func (m *MockStoryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockStoryRepo) FetchAndMarkGenerating(ctx context.Context) (*model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.Story
	for _, s := range m.stories {
		if s.Status != model.StoryStatusPending {
			continue
		}
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Status = model.StoryStatusGenerating
	cp := *oldest
	return &cp, nil
}

func (m *MockStoryRepo) MaxChapter(ctx context.Context, tx repository.Tx, parentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, s := range m.stories {
		if s.ID == parentID && s.Chapter > max {
			max = s.Chapter
		}
		if s.ParentID != nil && *s.ParentID == parentID && s.Chapter > max {
			max = s.Chapter
		}
	}
	return max, nil
}

func (m *MockStoryRepo) ListPublished(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Story
	for _, s := range m.stories {
		if s.Published {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, offset, limit), nil
}

func (m *MockStoryRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Story
	for _, s := range m.stories {
		if s.UserID != nil && *s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, offset, limit), nil
}

// Count is a test helper.
func (m *MockStoryRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stories)
}

func page(in []*model.Story, offset, limit int) []*model.Story {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// --- CreditTransactionRepository ---

type MockCreditRepo struct {
	mu   sync.Mutex
	rows []*model.CreditTransaction
}

func NewMockCreditRepo() *MockCreditRepo { return &MockCreditRepo{} }

func (m *MockCreditRepo) Save(ctx context.Context, tx repository.Tx, t *model.CreditTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockCreditRepo) CountByTypeSince(ctx context.Context, tx repository.Tx, userID string, typ model.TransactionType, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.UserID == userID && r.Type == typ && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// SaveIfCountBelow holds the repo mutex across the count and the append, the
// same atomic unit the storage layer provides.
func (m *MockCreditRepo) SaveIfCountBelow(ctx context.Context, t *model.CreditTransaction, since time.Time, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.UserID == t.UserID && r.Type == t.Type && !r.CreatedAt.Before(since) {
			n++
		}
	}
	if n >= limit {
		return false, nil
	}
	cp := *t
	m.rows = append(m.rows, &cp)
	return true, nil
}

func (m *MockCreditRepo) SumAmounts(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, r := range m.rows {
		if r.UserID == userID {
			sum += r.Amount
		}
	}
	return sum, nil
}

func (m *MockCreditRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CreditTransaction
	for _, r := range m.rows {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Filter is a test helper returning rows matching userID and type.
func (m *MockCreditRepo) Filter(userID string, typ model.TransactionType) []*model.CreditTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CreditTransaction
	for _, r := range m.rows {
		if r.UserID == userID && r.Type == typ {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// --- SubscriptionHistoryRepository ---

type MockHistoryRepo struct {
	mu   sync.Mutex
	rows []*model.SubscriptionHistory
}

func NewMockHistoryRepo() *MockHistoryRepo { return &MockHistoryRepo{} }

func (m *MockHistoryRepo) Save(ctx context.Context, tx repository.Tx, h *model.SubscriptionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockHistoryRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.SubscriptionHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SubscriptionHistory
	for _, h := range m.rows {
		if h.UserID == userID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockHistoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
