package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/otel"
)

// FailureRepository persists cascades that need operator attention.
type FailureRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewFailureRepository(db *pgxpool.Pool, logger *zap.Logger) *FailureRepository {
	return &FailureRepository{db: db, logger: logger}
}

func (r *FailureRepository) RecordFailure(ctx context.Context, f *model.CascadeFailure) error {
	err := otel.Traced(ctx, "insert", "cascade_failures", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
            INSERT INTO cascade_failures (job_id, milestone_id, attempts, last_error)
            VALUES ($1, $2, $3, $4)
            RETURNING id, created_at
        `, f.JobID, f.MilestoneID, f.Attempts, f.LastError).Scan(&f.ID, &f.CreatedAt)
	})
	if err != nil {
		r.logger.Error("Failed to record cascade failure",
			zap.String("job_id", f.JobID),
			zap.Int64("milestone_id", f.MilestoneID),
			zap.Error(err),
		)
		return fmt.Errorf("record cascade failure %s: %w", f.JobID, err)
	}
	return nil
}

// ListFailures returns unresolved failures, newest first.
func (r *FailureRepository) ListFailures(ctx context.Context, limit int) ([]*model.CascadeFailure, error) {
	var out []*model.CascadeFailure
	err := otel.Traced(ctx, "select", "cascade_failures", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
            SELECT id, job_id, milestone_id, attempts, last_error, resolved, created_at, resolved_at
            FROM cascade_failures
            WHERE NOT resolved
            ORDER BY created_at DESC
            LIMIT $1
        `, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f model.CascadeFailure
			if err := rows.Scan(&f.ID, &f.JobID, &f.MilestoneID, &f.Attempts, &f.LastError,
				&f.Resolved, &f.CreatedAt, &f.ResolvedAt); err != nil {
				return err
			}
			out = append(out, &f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list cascade failures: %w", err)
	}
	return out, nil
}

func (r *FailureRepository) ResolveFailure(ctx context.Context, id int64) error {
	var affected int64
	err := otel.Traced(ctx, "update", "cascade_failures", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
            UPDATE cascade_failures SET resolved = TRUE, resolved_at = NOW()
            WHERE id = $1 AND NOT resolved
        `, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("resolve cascade failure %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("cascade failure %d: %w", id, ErrFailureNotFound)
	}
	return nil
}
