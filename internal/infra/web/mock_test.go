package web_test

import (
	"context"
	"time"

	"velvetink/internal/domain/model"
	"velvetink/internal/usecase"
)

type mockUserSvc struct {
	registerFn func(ctx context.Context, email, displayName, password string) (*model.User, error)
	authFn     func(ctx context.Context, email, password string) (*model.User, error)
	getFn      func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserSvc) Register(ctx context.Context, email, displayName, password string) (*model.User, error) {
	return m.registerFn(ctx, email, displayName, password)
}
func (m *mockUserSvc) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	return m.authFn(ctx, email, password)
}
func (m *mockUserSvc) Get(ctx context.Context, id string) (*model.User, error) {
	return m.getFn(ctx, id)
}

type mockStorySvc struct {
	submitFn   func(ctx context.Context, userID string, params model.StoryParams) (*usecase.SubmitResult, error)
	statusFn   func(ctx context.Context, callerID string, isAdmin bool, storyID string) (usecase.StatusView, error)
	getFn      func(ctx context.Context, callerID string, isAdmin bool, storyID string) (*model.Story, error)
	extendFn   func(ctx context.Context, callerID string, isAdmin bool, parentID string) (*model.Story, error)
	libraryFn  func(ctx context.Context, offset, limit int) ([]*model.Story, error)
	listMineFn func(ctx context.Context, userID string, offset, limit int) ([]*model.Story, error)
}

func (m *mockStorySvc) Submit(ctx context.Context, userID string, params model.StoryParams) (*usecase.SubmitResult, error) {
	return m.submitFn(ctx, userID, params)
}
func (m *mockStorySvc) Status(ctx context.Context, callerID string, isAdmin bool, storyID string) (usecase.StatusView, error) {
	return m.statusFn(ctx, callerID, isAdmin, storyID)
}
func (m *mockStorySvc) Get(ctx context.Context, callerID string, isAdmin bool, storyID string) (*model.Story, error) {
	return m.getFn(ctx, callerID, isAdmin, storyID)
}
func (m *mockStorySvc) Extend(ctx context.Context, callerID string, isAdmin bool, parentID string) (*model.Story, error) {
	return m.extendFn(ctx, callerID, isAdmin, parentID)
}
func (m *mockStorySvc) Library(ctx context.Context, offset, limit int) ([]*model.Story, error) {
	return m.libraryFn(ctx, offset, limit)
}
func (m *mockStorySvc) ListMine(ctx context.Context, userID string, offset, limit int) ([]*model.Story, error) {
	return m.listMineFn(ctx, userID, offset, limit)
}

type mockCreditSvc struct {
	availableFn func(ctx context.Context, userID string) (int, error)
	canFn       func(ctx context.Context, userID string) (usecase.Availability, error)
}

func (m *mockCreditSvc) AvailableCredits(ctx context.Context, userID string) (int, error) {
	return m.availableFn(ctx, userID)
}
func (m *mockCreditSvc) CanGenerate(ctx context.Context, userID string) (usecase.Availability, error) {
	return m.canFn(ctx, userID)
}

type stubLimiter struct {
	allow bool
	calls int
}

func (l *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.calls++
	return l.allow, nil
}
