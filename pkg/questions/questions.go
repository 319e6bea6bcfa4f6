// Package questions manages the competency exam question bank.
package questions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kredensia/kredensia/pkg/errs"
)

// Question is a stored multiple-choice exam question.
type Question struct {
	ID        string    `json:"id" bson:"_id"`
	Category  string    `json:"category" bson:"category"`
	Text      string    `json:"text" bson:"text"`
	Options   []string  `json:"options" bson:"options"`
	Answer    int       `json:"answer" bson:"answer"`
	Points    int       `json:"points" bson:"points"`
	IsActive  bool      `json:"is_active" bson:"is_active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// NewQuestion is the candidate payload for question creation.
type NewQuestion struct {
	Category string   `json:"category"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
	Points   int      `json:"points"`
}

// ListFilter selects and pages questions.
type ListFilter struct {
	Category string
	Page     int
	Limit    int
}

const (
	defaultLimit = 20
	maxLimit     = 100

	minOptions = 2
	maxOptions = 6
)

// Normalize clamps paging values into range.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
}

// Page is one page of questions plus paging metadata.
type Page struct {
	Records     []*Question `json:"records"`
	CurrentPage int         `json:"current_page"`
	TotalPages  int         `json:"total_pages"`
	TotalCount  int         `json:"total_count"`
	HasNext     bool        `json:"has_next"`
	HasPrev     bool        `json:"has_prev"`
}

// Store is the persistence contract for questions.
type Store interface {
	Insert(ctx context.Context, q *Question) error
	FindByID(ctx context.Context, id string) (*Question, error)
	Replace(ctx context.Context, q *Question) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Question, int, error)
}

// Service implements the question bank operations over a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a question bank service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func validate(c NewQuestion) error {
	ve := errs.NewValidationError()
	if strings.TrimSpace(c.Text) == "" {
		ve.Add("text", "required")
	}
	if strings.TrimSpace(c.Category) == "" {
		ve.Add("category", "required")
	}
	if len(c.Options) < minOptions || len(c.Options) > maxOptions {
		ve.Add("options", "must have 2-6 entries")
	} else if c.Answer < 0 || c.Answer >= len(c.Options) {
		ve.Add("answer", "must index one of the options")
	}
	if c.Points < 1 {
		ve.Add("points", "must be positive")
	}
	if ve.HasViolations() {
		return ve
	}
	return nil
}

// Create validates and stores a new question.
func (s *Service) Create(ctx context.Context, candidate NewQuestion) (*Question, error) {
	if err := validate(candidate); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	q := &Question{
		ID:        uuid.NewString(),
		Category:  strings.TrimSpace(candidate.Category),
		Text:      strings.TrimSpace(candidate.Text),
		Options:   candidate.Options,
		Answer:    candidate.Answer,
		Points:    candidate.Points,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// FindByID returns one question.
func (s *Service) FindByID(ctx context.Context, id string) (*Question, error) {
	return s.store.FindByID(ctx, id)
}

// Update replaces a question's content after validating it.
func (s *Service) Update(ctx context.Context, id string, candidate NewQuestion) (*Question, error) {
	if err := validate(candidate); err != nil {
		return nil, err
	}

	q, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	q.Category = strings.TrimSpace(candidate.Category)
	q.Text = strings.TrimSpace(candidate.Text)
	q.Options = candidate.Options
	q.Answer = candidate.Answer
	q.Points = candidate.Points
	q.UpdatedAt = s.now().UTC()

	if err := s.store.Replace(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// SetActive toggles whether the question appears in exams.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Question, error) {
	q, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	q.IsActive = active
	q.UpdatedAt = s.now().UTC()
	if err := s.store.Replace(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Delete removes a question.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// List returns one page of questions matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (*Page, error) {
	filter.Normalize()

	records, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	if totalPages < 1 {
		totalPages = 1
	}
	return &Page{
		Records:     records,
		CurrentPage: filter.Page,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNext:     filter.Page < totalPages,
		HasPrev:     filter.Page > 1 && total > 0,
	}, nil
}
