//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/usecase"
)

type storyDeps struct {
	users   *MockUserRepo
	rows    *MockCreditRepo
	stories *MockStoryRepo
	svc     *usecase.StoryService
}

func newStoryDeps() *storyDeps {
	users := NewMockUserRepo()
	rows := NewMockCreditRepo()
	stories := NewMockStoryRepo()
	ledger := usecase.NewCreditLedger(users, rows, NewMockTxManager(), newTestLogger())
	svc := usecase.NewStoryService(stories, ledger, newTestLogger())
	return &storyDeps{users: users, rows: rows, stories: stories, svc: svc}
}

func validParams() model.StoryParams {
	return model.StoryParams{
		Genre:     "contemporary",
		HeatLevel: model.HeatWarm,
		Tropes:    []string{"enemies-to-lovers"},
		Length:    model.LengthShort,
	}
}

func TestStoryService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues a pending story and spends one credit", func(t *testing.T) {
		deps := newStoryDeps()
		u := seedUser(t, deps.users, model.TierStarter, 3, nil)

		res, err := deps.svc.Submit(ctx, u.ID, validParams())
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.Story.Status != model.StoryStatusPending {
			t.Errorf("expected pending status, got %q", res.Story.Status)
		}
		if res.Story.UserID == nil || *res.Story.UserID != u.ID {
			t.Error("expected story owned by the submitter")
		}
		if !res.Story.IsCustom {
			t.Error("expected a user submission to be marked custom")
		}
		if res.CreditsRemaining != 2 {
			t.Errorf("expected 2 credits remaining, got %d", res.CreditsRemaining)
		}
		if deps.users.Balance(u.ID) != 2 {
			t.Errorf("expected balance 2, got %d", deps.users.Balance(u.ID))
		}
		debits := deps.rows.Filter(u.ID, model.TransactionStoryGeneration)
		if len(debits) != 1 {
			t.Fatalf("expected one debit row, got %d", len(debits))
		}
		if debits[0].StoryID == nil || *debits[0].StoryID != res.Story.ID {
			t.Error("expected the debit row to reference the new story")
		}
	})

	t.Run("refuses without credits and leaves no story behind", func(t *testing.T) {
		deps := newStoryDeps()
		u := seedUser(t, deps.users, model.TierFree, 0, nil)

		_, err := deps.svc.Submit(ctx, u.ID, validParams())
		if !errors.Is(err, domain.ErrInsufficientCredits) {
			t.Fatalf("expected ErrInsufficientCredits, got %v", err)
		}
		if deps.stories.Count() != 0 {
			t.Error("expected no story row after a refused submit")
		}
	})

	t.Run("rejects invalid params before touching credits", func(t *testing.T) {
		deps := newStoryDeps()
		u := seedUser(t, deps.users, model.TierStarter, 3, nil)

		p := validParams()
		p.Genre = ""
		_, err := deps.svc.Submit(ctx, u.ID, p)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
		if deps.users.Balance(u.ID) != 3 {
			t.Error("expected balance untouched by an invalid request")
		}
		if deps.stories.Count() != 0 {
			t.Error("expected no story row for an invalid request")
		}
	})

	t.Run("concurrent submits on one credit produce one story and one debit", func(t *testing.T) {
		deps := newStoryDeps()
		u := seedUser(t, deps.users, model.TierStarter, 1, nil)

		done := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				_, err := deps.svc.Submit(ctx, u.ID, validParams())
				done <- err
			}()
		}
		for i := 0; i < 2; i++ {
			if err := <-done; err != nil && !errors.Is(err, domain.ErrInsufficientCredits) {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		// Both may lose the availability pre-check, but never both win.
		if stories := deps.stories.Count(); stories > 1 {
			t.Errorf("expected at most one story, got %d", stories)
		}
		if n := len(deps.rows.Filter(u.ID, model.TransactionStoryGeneration)); n > 1 {
			t.Errorf("expected at most one debit row, got %d", n)
		}
		if deps.users.Balance(u.ID) < 0 {
			t.Error("balance must never go negative")
		}
		if deps.stories.Count() != len(deps.rows.Filter(u.ID, model.TransactionStoryGeneration)) {
			t.Error("every surviving story must have a paired debit")
		}
	})
}

func TestStoryService_Status(t *testing.T) {
	ctx := context.Background()
	deps := newStoryDeps()
	owner := seedUser(t, deps.users, model.TierStarter, 3, nil)

	res, err := deps.svc.Submit(ctx, owner.ID, validParams())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	t.Run("owner can poll", func(t *testing.T) {
		view, err := deps.svc.Status(ctx, owner.ID, false, res.Story.ID)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if view.Status != model.StoryStatusPending {
			t.Errorf("expected pending, got %q", view.Status)
		}
	})

	t.Run("another user is forbidden", func(t *testing.T) {
		_, err := deps.svc.Status(ctx, "someone-else", false, res.Story.ID)
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("admin can poll anyone's story", func(t *testing.T) {
		if _, err := deps.svc.Status(ctx, "admin-id", true, res.Story.ID); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
	})

	t.Run("unknown id maps to not found", func(t *testing.T) {
		_, err := deps.svc.Status(ctx, owner.ID, false, "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStoryService_Get(t *testing.T) {
	ctx := context.Background()
	deps := newStoryDeps()
	owner := seedUser(t, deps.users, model.TierStarter, 3, nil)

	private, _ := model.NewStory(owner.ID, validParams())
	private.Status = model.StoryStatusCompleted
	deps.stories.Save(ctx, nil, private)

	curated, _ := model.NewStory("", validParams())
	curated.Status = model.StoryStatusCompleted
	curated.Published = true
	deps.stories.Save(ctx, nil, curated)

	t.Run("published stories are public", func(t *testing.T) {
		if _, err := deps.svc.Get(ctx, "anyone", false, curated.ID); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
	})

	t.Run("private stories require ownership", func(t *testing.T) {
		if _, err := deps.svc.Get(ctx, owner.ID, false, private.ID); err != nil {
			t.Fatalf("owner read failed: %v", err)
		}
		if _, err := deps.svc.Get(ctx, "someone-else", false, private.ID); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if _, err := deps.svc.Get(ctx, "admin-id", true, private.ID); err != nil {
			t.Fatalf("admin read failed: %v", err)
		}
	})
}

func TestStoryService_Extend(t *testing.T) {
	ctx := context.Background()

	completedStory := func(t *testing.T, deps *storyDeps, ownerID string) *model.Story {
		t.Helper()
		s, err := model.NewStory(ownerID, validParams())
		if err != nil {
			t.Fatalf("new story: %v", err)
		}
		s.Status = model.StoryStatusCompleted
		s.Title = "The First Night"
		s.Body = "..."
		if err := deps.stories.Save(ctx, nil, s); err != nil {
			t.Fatalf("save: %v", err)
		}
		return s
	}

	t.Run("first extension becomes chapter two and costs nothing", func(t *testing.T) {
		deps := newStoryDeps()
		owner := seedUser(t, deps.users, model.TierStarter, 2, nil)
		parent := completedStory(t, deps, owner.ID)

		child, err := deps.svc.Extend(ctx, owner.ID, false, parent.ID)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if child.Chapter != 2 {
			t.Errorf("expected chapter 2, got %d", child.Chapter)
		}
		if child.ParentID == nil || *child.ParentID != parent.ID {
			t.Error("expected child linked to parent")
		}
		if child.Status != model.StoryStatusPending {
			t.Errorf("expected pending child, got %q", child.Status)
		}
		if deps.users.Balance(owner.ID) != 2 {
			t.Error("extensions must not consume credits")
		}
		if len(deps.rows.Filter(owner.ID, model.TransactionStoryGeneration)) != 0 {
			t.Error("extensions must not write debit rows")
		}
	})

	t.Run("chapters number past the highest existing extension", func(t *testing.T) {
		deps := newStoryDeps()
		owner := seedUser(t, deps.users, model.TierStarter, 2, nil)
		parent := completedStory(t, deps, owner.ID)

		second, err := deps.svc.Extend(ctx, owner.ID, false, parent.ID)
		if err != nil {
			t.Fatalf("first extension: %v", err)
		}
		second.Status = model.StoryStatusCompleted
		deps.stories.Save(ctx, nil, second)

		third, err := deps.svc.Extend(ctx, owner.ID, false, parent.ID)
		if err != nil {
			t.Fatalf("second extension: %v", err)
		}
		if third.Chapter != 3 {
			t.Errorf("expected chapter 3, got %d", third.Chapter)
		}
	})

	t.Run("refuses until the parent has completed", func(t *testing.T) {
		deps := newStoryDeps()
		owner := seedUser(t, deps.users, model.TierStarter, 2, nil)
		parent, _ := model.NewStory(owner.ID, validParams())
		deps.stories.Save(ctx, nil, parent)

		_, err := deps.svc.Extend(ctx, owner.ID, false, parent.ID)
		if !errors.Is(err, domain.ErrNotCompleted) {
			t.Fatalf("expected ErrNotCompleted, got %v", err)
		}
	})

	t.Run("refuses non-owners", func(t *testing.T) {
		deps := newStoryDeps()
		owner := seedUser(t, deps.users, model.TierStarter, 2, nil)
		parent := completedStory(t, deps, owner.ID)

		_, err := deps.svc.Extend(ctx, "someone-else", false, parent.ID)
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}
