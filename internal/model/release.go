package model

import "time"

type Release struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Tag         string     `json:"tag"`
	Description string     `json:"description"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	MilestoneID *int64     `json:"milestone_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ReleaseStatus string

const (
	ReleaseUpcoming ReleaseStatus = "upcoming"
	ReleaseReleased ReleaseStatus = "released"
)

// StatusAt reports whether the release has shipped as of now.
func (r *Release) StatusAt(now time.Time) ReleaseStatus {
	if r.ReleasedAt != nil && !r.ReleasedAt.After(now) {
		return ReleaseReleased
	}
	return ReleaseUpcoming
}

// Association is the result of linking a release to a milestone.
type Association struct {
	ReleaseID   int64 `json:"release_id"`
	MilestoneID int64 `json:"milestone_id"`
}
