package mq

import "time"

// Routing keys on the "events" exchange.
const (
	RoutingKeyCascadeRequested = "milestone.cascade"
	RoutingKeyMilestoneClosed  = "milestone.closed"
	RoutingKeyInputsChanged    = "milestone.inputs_changed"
)

// CascadeRequestedPayload is the durable closure cascade job.
type CascadeRequestedPayload struct {
	JobID       string    `json:"job_id"`
	MilestoneID int64     `json:"milestone_id"`
	ClosedAt    time.Time `json:"closed_at"`
	ActorID     int64     `json:"actor_id"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// MilestoneClosedNotification tells downstream consumers a milestone closed.
type MilestoneClosedNotification struct {
	Event       string    `json:"event"`
	MilestoneID int64     `json:"milestone_id"`
	JobID       string    `json:"job_id"`
	ClosedAt    time.Time `json:"closed_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// InputsChangedPayload is published by the services that own issues and
// merge requests whenever a change affects a milestone's progress.
type InputsChangedPayload struct {
	MilestoneID int64  `json:"milestone_id"`
	Source      string `json:"source"` // issue / merge_request
	TraceID     string `json:"trace_id,omitempty"`
}
