package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/repository"
)

var ErrBadCredentials = errors.New("invalid email or password")

// CreditGranter is the slice of the credit ledger signup needs.
type CreditGranter interface {
	Credit(ctx context.Context, userID string, amount int, typ model.TransactionType, description string, storyID *string) error
}

// UserService handles signup and login. Signup grants the welcome credit
// through the ledger so even the starting balance has a paired transaction.
type UserService struct {
	users   repository.UserRepository
	credits CreditGranter
	log     *zerolog.Logger
}

func NewUserService(users repository.UserRepository, credits CreditGranter, log *zerolog.Logger) *UserService {
	return &UserService{users: users, credits: credits, log: log}
}

func (s *UserService) Register(ctx context.Context, email, displayName, password string) (*model.User, error) {
	if len(password) < 8 {
		return nil, domain.ErrInvalidArgument
	}
	if existing, err := s.users.FindByEmail(ctx, nil, email); err == nil && !existing.IsZero() {
		return nil, domain.ErrAlreadyExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, err := model.NewUser("", email, displayName, string(hash))
	if err != nil {
		return nil, err
	}
	if err := s.users.Save(ctx, nil, user); err != nil {
		return nil, err
	}
	if err := s.credits.Credit(ctx, user.ID, model.WelcomeCredits, model.TransactionSubscription, "welcome credit", nil); err != nil {
		return nil, err
	}
	user.CreditBalance = model.WelcomeCredits
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, nil, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.users.FindByID(ctx, nil, id)
}
