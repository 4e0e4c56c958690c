package model

import (
	"time"

	"velvetink/internal/domain"

	"github.com/google/uuid"
)

type StoryStatus string

const (
	StoryStatusPending    StoryStatus = "pending"
	StoryStatusGenerating StoryStatus = "generating"
	StoryStatusCompleted  StoryStatus = "completed"
	StoryStatusFailed     StoryStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s StoryStatus) IsTerminal() bool {
	return s == StoryStatusCompleted || s == StoryStatusFailed
}

type HeatLevel string

const (
	HeatSweet     HeatLevel = "Sweet"
	HeatWarm      HeatLevel = "Warm"
	HeatSteamy    HeatLevel = "Steamy"
	HeatScorching HeatLevel = "Scorching"
)

func ParseHeatLevel(s string) (HeatLevel, bool) {
	switch HeatLevel(s) {
	case HeatSweet, HeatWarm, HeatSteamy, HeatScorching:
		return HeatLevel(s), true
	default:
		return "", false
	}
}

// ContentRating derives the fixed age rating from the heat level.
// Sweet is the only all-ages level; Scorching gets the explicit marker.
func (h HeatLevel) ContentRating() string {
	switch h {
	case HeatSweet:
		return "PG"
	case HeatScorching:
		return "18+ Explicit"
	default:
		return "18+"
	}
}

type StoryLength string

const (
	LengthShort  StoryLength = "short"
	LengthMedium StoryLength = "medium"
	LengthLong   StoryLength = "long"
)

// TargetWords returns the approximate word count requested from the text
// service. The actual output length is accepted as-is.
func (l StoryLength) TargetWords() int {
	switch l {
	case LengthShort:
		return 1200
	case LengthLong:
		return 4000
	default:
		return 2500
	}
}

// StoryParams is the generation configuration captured at submit time and
// replayed by the worker when it builds the prompt.
type StoryParams struct {
	Genre          string      `json:"genre"`
	HeatLevel      HeatLevel   `json:"heat_level"`
	Tropes         []string    `json:"tropes"`
	Length         StoryLength `json:"length"`
	CharacterNames []string    `json:"character_names,omitempty"`
	Scenario       string      `json:"scenario,omitempty"`
	WantCover      bool        `json:"want_cover,omitempty"`
}

func (p StoryParams) Validate() error {
	if p.Genre == "" {
		return domain.ErrInvalidArgument
	}
	if _, ok := ParseHeatLevel(string(p.HeatLevel)); !ok {
		return domain.ErrInvalidArgument
	}
	if len(p.Tropes) == 0 {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Story is a single generation job plus its eventual output. A story acts as
// its own durable queue entry: the worker claims pending rows and advances
// them to a terminal state.
type Story struct {
	ID        string
	UserID    *string // nil for admin-curated stories
	Status    StoryStatus
	LastError string
	IsCustom  bool
	Published bool

	Params StoryParams

	// Output fields, placeholder until status = completed.
	Title          string
	Author         string
	Summary        string
	Tags           []string
	Body           string
	CoverImageURL  string
	WordCount      int
	ReadingMinutes int
	ContentRating  string

	// Chapter extensions reference their parent; first extension = chapter 2.
	ParentID *string
	Chapter  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStory creates a pending user-initiated story from validated params.
func NewStory(userID string, params StoryParams) (*Story, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Length == "" {
		params.Length = LengthMedium
	}
	now := time.Now()
	s := &Story{
		ID:        uuid.NewString(),
		Status:    StoryStatusPending,
		IsCustom:  true,
		Params:    params,
		Chapter:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if userID != "" {
		s.UserID = &userID
	} else {
		s.IsCustom = false
	}
	return s, nil
}

// NewChapter creates a pending continuation of a completed parent story.
func NewChapter(parent *Story, chapter int) (*Story, error) {
	if parent == nil || parent.Status != StoryStatusCompleted {
		return nil, domain.ErrNotCompleted
	}
	if chapter < 2 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Story{
		ID:        uuid.NewString(),
		UserID:    parent.UserID,
		Status:    StoryStatusPending,
		IsCustom:  parent.IsCustom,
		Params:    parent.Params,
		ParentID:  &parent.ID,
		Chapter:   chapter,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ReadingTime estimates reading minutes at 200 words per minute, rounded up.
func ReadingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + 199) / 200
}
