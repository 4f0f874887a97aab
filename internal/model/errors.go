package model

import "errors"

var (
	ErrDuplicateTitle     = errors.New("milestone title already exists in scope")
	ErrDuplicateTag       = errors.New("release tag already exists in project")
	ErrInvalidDateRange   = errors.New("start date is after due date")
	ErrInvalidScope       = errors.New("milestone must belong to exactly one of project or group")
	ErrInvalidTitle       = errors.New("milestone title must be 1-255 characters")
	ErrInvalidRelease     = errors.New("release needs a project and a tag")
	ErrReleaseNotFound    = errors.New("release not found")
	ErrMilestoneNotFound  = errors.New("milestone not found")
	ErrAlreadyAssociated  = errors.New("release is already associated with a milestone")
	ErrNotActive          = errors.New("milestone is not active")
	ErrInconsistentState  = errors.New("progress snapshot disagrees with store")
	ErrAsyncCascadeFailed = errors.New("closure cascade failed after retries")
	ErrUnauthorized       = errors.New("not authorized")
)

// Error kinds used at the HTTP boundary and in metrics labels.
const (
	KindValidation   = "validation"
	KindConflict     = "conflict"
	KindNotFound     = "not_found"
	KindConsistency  = "consistency"
	KindUnauthorized = "unauthorized"
	KindInternal     = "internal"
)

// Kind classifies err by the sentinel it wraps.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrInvalidScope),
		errors.Is(err, ErrInvalidTitle),
		errors.Is(err, ErrInvalidRelease):
		return KindValidation
	case errors.Is(err, ErrDuplicateTitle),
		errors.Is(err, ErrDuplicateTag),
		errors.Is(err, ErrAlreadyAssociated),
		errors.Is(err, ErrNotActive):
		return KindConflict
	case errors.Is(err, ErrReleaseNotFound),
		errors.Is(err, ErrMilestoneNotFound):
		return KindNotFound
	case errors.Is(err, ErrInconsistentState):
		return KindConsistency
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}
