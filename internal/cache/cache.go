// Package cache stores computed progress snapshots keyed by milestone. Each
// snapshot carries the progress version it was computed from; readers
// compare it with the milestone's current version.
package cache

import (
	"context"
	"strconv"

	"milestone-service/internal/model"
)

type ProgressCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, milestoneID int64) (snap *model.ProgressSnapshot, ok bool, err error)
	Set(ctx context.Context, snap *model.ProgressSnapshot) error
	Evict(ctx context.Context, milestoneID int64) error
}

const keyPrefix = "progress:milestone:"

func Key(milestoneID int64) string {
	return keyPrefix + strconv.FormatInt(milestoneID, 10)
}
