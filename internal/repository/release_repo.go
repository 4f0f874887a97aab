package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/otel"
)

const releaseColumns = `id, project_id, tag, description, released_at, milestone_id, created_at`

type ReleaseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReleaseRepository(db *pgxpool.Pool, logger *zap.Logger) *ReleaseRepository {
	return &ReleaseRepository{db: db, logger: logger}
}

func (r *ReleaseRepository) CreateRelease(ctx context.Context, rel *model.Release) error {
	query := `
        INSERT INTO releases (project_id, tag, description, released_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	err := otel.Traced(ctx, "insert", "releases", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, rel.ProjectID, rel.Tag, rel.Description, rel.ReleasedAt).
			Scan(&rel.ID, &rel.CreatedAt)
	})
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return fmt.Errorf("create release %q: %w", rel.Tag, mapped)
		}
		r.logger.Error("Failed to insert release", zap.String("tag", rel.Tag), zap.Error(err))
		return fmt.Errorf("insert release: %w", err)
	}
	rel.MilestoneID = nil
	r.logger.Info("Release inserted", zap.Int64("release_id", rel.ID), zap.Int64("project_id", rel.ProjectID))
	return nil
}

func (r *ReleaseRepository) GetRelease(ctx context.Context, id int64) (*model.Release, error) {
	var rel *model.Release
	err := otel.Traced(ctx, "select", "releases", func(ctx context.Context) error {
		var err error
		rel, err = scanRelease(r.db.QueryRow(ctx, `SELECT `+releaseColumns+` FROM releases WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("release %d: %w", id, model.ErrReleaseNotFound)
		}
		return nil, fmt.Errorf("get release %d: %w", id, err)
	}
	return rel, nil
}

// AssociateRelease sets milestone_id only where it is still NULL, so of two
// concurrent associations exactly one succeeds.
func (r *ReleaseRepository) AssociateRelease(ctx context.Context, releaseID, milestoneID int64) error {
	err := otel.Traced(ctx, "update", "releases", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
                UPDATE releases SET milestone_id = $2
                WHERE id = $1 AND milestone_id IS NULL
            `, releaseID, milestoneID)
			if err != nil {
				return mapPgError(err)
			}
			if tag.RowsAffected() == 0 {
				return r.whyNotAssociated(ctx, tx, releaseID, milestoneID)
			}

			bumped, err := tx.Exec(ctx, `
                UPDATE milestones SET progress_version = progress_version + 1, updated_at = NOW()
                WHERE id = $1
            `, milestoneID)
			if err != nil {
				return err
			}
			if bumped.RowsAffected() == 0 {
				return model.ErrMilestoneNotFound
			}
			return nil
		})
	})
	if err != nil {
		if model.Kind(err) == model.KindInternal {
			r.logger.Error("Failed to associate release",
				zap.Int64("release_id", releaseID),
				zap.Int64("milestone_id", milestoneID),
				zap.Error(err),
			)
		}
		return fmt.Errorf("associate release %d with milestone %d: %w", releaseID, milestoneID, err)
	}

	r.logger.Info("Release associated",
		zap.Int64("release_id", releaseID),
		zap.Int64("milestone_id", milestoneID),
	)
	return nil
}

// whyNotAssociated reports, in order, a missing release, a missing milestone
// and only then an existing link.
func (r *ReleaseRepository) whyNotAssociated(ctx context.Context, tx pgx.Tx, releaseID, milestoneID int64) error {
	var current *int64
	err := tx.QueryRow(ctx, `SELECT milestone_id FROM releases WHERE id = $1`, releaseID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrReleaseNotFound
	}
	if err != nil {
		return err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM milestones WHERE id = $1)`, milestoneID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrMilestoneNotFound
	}
	return model.ErrAlreadyAssociated
}

func (r *ReleaseRepository) ListReleases(ctx context.Context, milestoneID int64) ([]*model.Release, error) {
	var releases []*model.Release
	err := otel.Traced(ctx, "select", "releases", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
            SELECT `+releaseColumns+`
            FROM releases
            WHERE milestone_id = $1
            ORDER BY id ASC
        `, milestoneID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rel, err := scanRelease(rows)
			if err != nil {
				return err
			}
			releases = append(releases, rel)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list releases of milestone %d: %w", milestoneID, err)
	}
	return releases, nil
}

func scanRelease(row pgx.Row) (*model.Release, error) {
	var rel model.Release
	if err := row.Scan(
		&rel.ID,
		&rel.ProjectID,
		&rel.Tag,
		&rel.Description,
		&rel.ReleasedAt,
		&rel.MilestoneID,
		&rel.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rel, nil
}
