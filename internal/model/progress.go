package model

import "time"

type ReleaseProgress struct {
	ReleaseID  int64         `json:"release_id"`
	Tag        string        `json:"tag"`
	ReleasedAt *time.Time    `json:"released_at,omitempty"`
	Status     ReleaseStatus `json:"status"`
}

// ProgressSnapshot is a point-in-time view of a milestone's progress. Version
// is the milestone's ProgressVersion the snapshot was computed from.
type ProgressSnapshot struct {
	MilestoneID     int64             `json:"milestone_id"`
	State           MilestoneState    `json:"state"`
	CompletedIssues int64             `json:"completed_issues"`
	TotalIssues     int64             `json:"total_issues"`
	Weighted        bool              `json:"weighted"`
	CompletedWeight int64             `json:"completed_weight"`
	TotalWeight     int64             `json:"total_weight"`
	MergedRequests  int64             `json:"merged_requests"`
	TotalRequests   int64             `json:"total_requests"`
	ElapsedDays     int               `json:"elapsed_days"`
	TotalDays       int               `json:"total_days"`
	Releases        []ReleaseProgress `json:"releases"`
	PendingCascade  int64             `json:"pending_cascade"`
	Version         int64             `json:"version"`
}

// Percent is the completed issue ratio in [0, 1]; 0 when there are no issues.
func (p *ProgressSnapshot) Percent() float64 {
	return ratio(p.CompletedIssues, p.TotalIssues)
}

func (p *ProgressSnapshot) WeightedPercent() float64 {
	return ratio(p.CompletedWeight, p.TotalWeight)
}

// RefreshAt recomputes the fields that depend on the current date rather
// than on the progress version: elapsed days and release statuses.
func (p *ProgressSnapshot) RefreshAt(m *Milestone, now time.Time) {
	p.ElapsedDays = m.ElapsedDays(now)
	for i := range p.Releases {
		r := Release{ReleasedAt: p.Releases[i].ReleasedAt}
		p.Releases[i].Status = r.StatusAt(now)
	}
}

// CheckBounds verifies every counter lies within its total.
func (p *ProgressSnapshot) CheckBounds() bool {
	return inRange(p.CompletedIssues, p.TotalIssues) &&
		inRange(p.CompletedWeight, p.TotalWeight) &&
		inRange(p.MergedRequests, p.TotalRequests) &&
		inRange(int64(p.ElapsedDays), int64(p.TotalDays))
}

// Closure is the outcome of closing a milestone.
type Closure struct {
	MilestoneID int64          `json:"milestone_id"`
	State       MilestoneState `json:"state"`
	ClosedAt    time.Time      `json:"closed_at"`
	Mode        CascadeMode    `json:"mode"`
	JobID       string         `json:"job_id"`
	Dependents  int64          `json:"dependents"`
	// CascadeError is set when the inline cascade failed and was handed to the worker.
	CascadeError string `json:"cascade_error,omitempty"`
}

type CascadeMode string

const (
	CascadeInline   CascadeMode = "inline"
	CascadeDeferred CascadeMode = "deferred"
)

func ratio(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total)
}

func inRange(v, total int64) bool {
	return v >= 0 && v <= total
}
