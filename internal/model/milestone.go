package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type MilestoneState string

const (
	StateActive MilestoneState = "active"
	StateClosed MilestoneState = "closed"
)

const MaxTitleLength = 255

// Scope is the owner of a milestone: exactly one of project or group.
type Scope struct {
	ProjectID *int64 `json:"project_id,omitempty"`
	GroupID   *int64 `json:"group_id,omitempty"`
}

const (
	ScopeProject = "project"
	ScopeGroup   = "group"
)

func ProjectScope(id int64) Scope { return Scope{ProjectID: &id} }
func GroupScope(id int64) Scope   { return Scope{GroupID: &id} }

func (s Scope) Validate() error {
	if (s.ProjectID == nil) == (s.GroupID == nil) {
		return ErrInvalidScope
	}
	if s.ID() <= 0 {
		return ErrInvalidScope
	}
	return nil
}

// Kind returns "project" or "group". Callers validate first.
func (s Scope) Kind() string {
	if s.ProjectID != nil {
		return ScopeProject
	}
	return ScopeGroup
}

func (s Scope) ID() int64 {
	if s.ProjectID != nil {
		return *s.ProjectID
	}
	if s.GroupID != nil {
		return *s.GroupID
	}
	return 0
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind(), s.ID())
}

type Milestone struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	StartDate       *time.Time     `json:"start_date,omitempty"`
	DueDate         *time.Time     `json:"due_date,omitempty"`
	Scope           Scope          `json:"scope"`
	State           MilestoneState `json:"state"` // active / closed
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	ProgressVersion int64          `json:"progress_version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (m *Milestone) IsActive() bool { return m.State == StateActive }

// TotalDays is the planned length in days, 0 unless both dates are set.
func (m *Milestone) TotalDays() int {
	if m.StartDate == nil || m.DueDate == nil {
		return 0
	}
	return daysBetween(*m.StartDate, *m.DueDate)
}

// ElapsedDays is min(today, due) - start, clamped to [0, TotalDays].
func (m *Milestone) ElapsedDays(now time.Time) int {
	total := m.TotalDays()
	if total == 0 {
		return 0
	}
	end := DateOf(now)
	if end.After(*m.DueDate) {
		end = *m.DueDate
	}
	elapsed := daysBetween(*m.StartDate, end)
	return max(0, min(elapsed, total))
}

// ValidateTitle trims the title and checks its length.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}

// ValidateDateRange rejects start > due when both are present.
func ValidateDateRange(start, due *time.Time) error {
	if start != nil && due != nil && start.After(*due) {
		return fmt.Errorf("start %s after due %s: %w",
			start.Format(time.DateOnly), due.Format(time.DateOnly), ErrInvalidDateRange)
	}
	return nil
}

// DateOf truncates t to a UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD; an empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, ErrInvalidDateRange)
	}
	return &t, nil
}

func daysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}
