package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/otel"
)

// DependentRepository reads issues and merge requests owned by other
// services and stamps them during the closure cascade.
type DependentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDependentRepository(db *pgxpool.Pool, logger *zap.Logger) *DependentRepository {
	return &DependentRepository{db: db, logger: logger}
}

func (r *DependentRepository) CountDependents(ctx context.Context, milestoneID int64) (int64, error) {
	var n int64
	err := otel.Traced(ctx, "select", "issues", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
            SELECT (SELECT count(*) FROM issues WHERE milestone_id = $1)
                 + (SELECT count(*) FROM merge_requests WHERE milestone_id = $1)
        `, milestoneID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count dependents of %d: %w", milestoneID, err)
	}
	return n, nil
}

func (r *DependentRepository) IssueStats(ctx context.Context, milestoneID int64) (model.IssueStats, error) {
	var s model.IssueStats
	err := otel.Traced(ctx, "select", "issues", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
            SELECT count(*),
                   count(*) FILTER (WHERE state = 'closed'),
                   COALESCE(sum(COALESCE(weight, 1)), 0),
                   COALESCE(sum(COALESCE(weight, 1)) FILTER (WHERE state = 'closed'), 0)
            FROM issues
            WHERE milestone_id = $1
        `, milestoneID).Scan(&s.Total, &s.Completed, &s.TotalWeight, &s.CompletedWeight)
	})
	if err != nil {
		return s, fmt.Errorf("issue stats of %d: %w", milestoneID, err)
	}
	return s, nil
}

func (r *DependentRepository) MergeRequestStats(ctx context.Context, milestoneID int64) (model.MergeRequestStats, error) {
	var s model.MergeRequestStats
	err := otel.Traced(ctx, "select", "merge_requests", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
            SELECT count(*), count(*) FILTER (WHERE state = 'merged')
            FROM merge_requests
            WHERE milestone_id = $1
        `, milestoneID).Scan(&s.Total, &s.Merged)
	})
	if err != nil {
		return s, fmt.Errorf("merge request stats of %d: %w", milestoneID, err)
	}
	return s, nil
}

func (r *DependentRepository) PendingCascade(ctx context.Context, milestoneID int64) (int64, error) {
	var n int64
	err := otel.Traced(ctx, "select", "issues", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
            SELECT (SELECT count(*) FROM issues WHERE milestone_id = $1 AND milestone_closed_at IS NULL)
                 + (SELECT count(*) FROM merge_requests WHERE milestone_id = $1 AND milestone_closed_at IS NULL)
        `, milestoneID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("pending cascade of %d: %w", milestoneID, err)
	}
	return n, nil
}

func (r *DependentRepository) StampMilestoneClosed(ctx context.Context, milestoneID int64, closedAt time.Time) (int64, error) {
	var stamped int64
	err := otel.Traced(ctx, "update", "issues", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			stamped = 0
			for _, table := range []string{"issues", "merge_requests"} {
				tag, err := tx.Exec(ctx, `
                    UPDATE `+table+` SET milestone_closed_at = $2
                    WHERE milestone_id = $1 AND milestone_closed_at IS NULL
                `, milestoneID, closedAt)
				if err != nil {
					return err
				}
				stamped += tag.RowsAffected()
			}
			return nil
		})
	})
	if err != nil {
		r.logger.Warn("Failed to stamp dependents", zap.Int64("milestone_id", milestoneID), zap.Error(err))
		return 0, fmt.Errorf("stamp dependents of %d: %w", milestoneID, err)
	}
	r.logger.Debug("Dependents stamped", zap.Int64("milestone_id", milestoneID), zap.Int64("rows", stamped))
	return stamped, nil
}
