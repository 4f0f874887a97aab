package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"milestone-service/internal/model"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapPgError translates constraint violations into domain errors. Anything
// else is returned unchanged.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "milestones_scope_title_key":
			return model.ErrDuplicateTitle
		case "releases_project_tag_key":
			return model.ErrDuplicateTag
		}
	case pgForeignKeyViolation:
		if pgErr.TableName == "releases" || pgErr.ConstraintName == "releases_milestone_id_fkey" {
			return model.ErrMilestoneNotFound
		}
	case pgCheckViolation:
		switch pgErr.ConstraintName {
		case "milestones_date_range":
			return model.ErrInvalidDateRange
		case "milestones_one_scope":
			return model.ErrInvalidScope
		case "milestones_title_check":
			return model.ErrInvalidTitle
		}
	}
	return err
}
