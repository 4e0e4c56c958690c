package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"velvetink/internal/domain"
	"velvetink/internal/domain/model"
	"velvetink/internal/usecase"
)

var validate = validator.New()

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps use-case sentinels onto HTTP statuses. The wrapped
// message is surfaced for credit refusals so clients can show the tier-aware
// reason verbatim.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeJSONError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, usecase.ErrBadCredentials):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrNotCompleted):
		writeJSONError(w, http.StatusConflict, "story is not completed")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid request")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func pageParams(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

// ===== Views =====

type userView struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"display_name"`
	Tier           model.Tier `json:"tier"`
	CreditBalance  int        `json:"credit_balance"`
	CreditsUsed    int        `json:"credits_used"`
	CreditsResetAt *time.Time `json:"credits_reset_at,omitempty"`
}

func toUserView(u *model.User) userView {
	return userView{
		ID:             u.ID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		Tier:           u.Tier,
		CreditBalance:  u.CreditBalance,
		CreditsUsed:    u.CreditsUsed,
		CreditsResetAt: u.CreditsResetAt,
	}
}

type storyView struct {
	ID             string            `json:"id"`
	Status         model.StoryStatus `json:"status"`
	Title          string            `json:"title,omitempty"`
	Author         string            `json:"author,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Body           string            `json:"body,omitempty"`
	CoverImageURL  string            `json:"cover_image_url,omitempty"`
	WordCount      int               `json:"word_count,omitempty"`
	ReadingMinutes int               `json:"reading_minutes,omitempty"`
	ContentRating  string            `json:"content_rating,omitempty"`
	Chapter        int               `json:"chapter"`
	ParentID       *string           `json:"parent_id,omitempty"`
	Published      bool              `json:"published"`
	Params         model.StoryParams `json:"params"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toStoryView(s *model.Story) storyView {
	return storyView{
		ID:             s.ID,
		Status:         s.Status,
		Title:          s.Title,
		Author:         s.Author,
		Summary:        s.Summary,
		Tags:           s.Tags,
		Body:           s.Body,
		CoverImageURL:  s.CoverImageURL,
		WordCount:      s.WordCount,
		ReadingMinutes: s.ReadingMinutes,
		ContentRating:  s.ContentRating,
		Chapter:        s.Chapter,
		ParentID:       s.ParentID,
		Published:      s.Published,
		Params:         s.Params,
		CreatedAt:      s.CreatedAt,
	}
}

func toStoryViews(stories []*model.Story) []storyView {
	out := make([]storyView, 0, len(stories))
	for _, s := range stories {
		out = append(out, toStoryView(s))
	}
	return out
}

// ===== Auth =====

type signupRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"max=80"`
	Password    string `json:"password" validate:"required,min=8"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid request")
		return
	}

	user, err := s.users.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if _, err := s.auth.Mint(w, user); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(user))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid request")
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	token, err := s.auth.Mint(w, user)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		User  userView `json:"user"`
		Token string   `json:"token"`
	}{toUserView(user), token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	user, err := s.users.Get(r.Context(), caller.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}

// ===== Credits =====

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	av, err := s.credits.CanGenerate(r.Context(), caller.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Remaining int        `json:"remaining"`
		Allowed   bool       `json:"allowed"`
		Reason    string     `json:"reason,omitempty"`
		Tier      model.Tier `json:"tier"`
	}{av.Remaining, av.Allowed, av.Reason, av.Tier})
}

// ===== Stories =====

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	if s.limiter != nil {
		key := "rate_limit:" + caller.UserID + ":submit"
		ok, err := s.limiter.Allow(r.Context(), key, submitRateLimit, submitRateWindow)
		if err != nil {
			s.log.Error().Err(err).Msg("rate limiter unavailable; letting request through")
		} else if !ok {
			writeJSONError(w, http.StatusTooManyRequests, "too many submissions, slow down")
			return
		}
	}

	var params model.StoryParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.stories.Submit(r.Context(), caller.UserID, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, struct {
		StoryID          string            `json:"story_id"`
		Status           model.StoryStatus `json:"status"`
		CreditsRemaining int               `json:"credits_remaining"`
	}{res.Story.ID, res.Story.Status, res.CreditsRemaining})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	view, err := s.stories.Status(r.Context(), caller.UserID, caller.IsAdmin, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID     string            `json:"id"`
		Status model.StoryStatus `json:"status"`
		Error  string            `json:"error,omitempty"`
		Title  string            `json:"title,omitempty"`
	}{view.ID, view.Status, view.Error, view.Title})
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	story, err := s.stories.Get(r.Context(), caller.UserID, caller.IsAdmin, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoryView(story))
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	child, err := s.stories.Extend(r.Context(), caller.UserID, caller.IsAdmin, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, struct {
		StoryID string            `json:"story_id"`
		Status  model.StoryStatus `json:"status"`
		Chapter int               `json:"chapter"`
	}{child.ID, child.Status, child.Chapter})
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	offset, limit := pageParams(r)
	stories, err := s.stories.ListMine(r.Context(), caller.UserID, offset, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data   []storyView `json:"data"`
		Offset int         `json:"offset"`
		Limit  int         `json:"limit"`
	}{toStoryViews(stories), offset, limit})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	stories, err := s.stories.Library(r.Context(), offset, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data   []storyView `json:"data"`
		Offset int         `json:"offset"`
		Limit  int         `json:"limit"`
	}{toStoryViews(stories), offset, limit})
}
