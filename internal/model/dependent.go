package model

import "time"

const (
	IssueOpened = "opened"
	IssueClosed = "closed"

	MergeRequestOpened = "opened"
	MergeRequestMerged = "merged"
	MergeRequestClosed = "closed"
	MergeRequestLocked = "locked"
)

// Issue is owned by the issue tracker; this service only reads it and stamps
// MilestoneClosedAt.
type Issue struct {
	ID                int64      `json:"id"`
	MilestoneID       *int64     `json:"milestone_id,omitempty"`
	State             string     `json:"state"`
	Weight            *int       `json:"weight,omitempty"`
	MilestoneClosedAt *time.Time `json:"milestone_closed_at,omitempty"`
}

type MergeRequest struct {
	ID                int64      `json:"id"`
	MilestoneID       *int64     `json:"milestone_id,omitempty"`
	State             string     `json:"state"`
	MilestoneClosedAt *time.Time `json:"milestone_closed_at,omitempty"`
}

// IssueStats are aggregate counts over a milestone's issues. Unweighted
// issues count with weight 1.
type IssueStats struct {
	Total           int64
	Completed       int64
	TotalWeight     int64
	CompletedWeight int64
}

type MergeRequestStats struct {
	Total  int64
	Merged int64
}

// CascadeJob is the deferred part of a closure: stamp dependents, refresh
// progress, notify.
type CascadeJob struct {
	JobID       string    `json:"job_id"`
	MilestoneID int64     `json:"milestone_id"`
	ClosedAt    time.Time `json:"closed_at"`
	ActorID     int64     `json:"actor_id"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// CascadeFailure is a cascade that exhausted its attempts and needs an operator.
type CascadeFailure struct {
	ID          int64      `json:"id"`
	JobID       string     `json:"job_id"`
	MilestoneID int64      `json:"milestone_id"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error"`
	Resolved    bool       `json:"resolved"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
