package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/pkg/otel"
	"milestone-service/pkg/outbox"
)

const milestoneColumns = `id, title, description, start_date, due_date, project_id, group_id,
       state, closed_at, progress_version, created_at, updated_at`

type MilestoneRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		outbox: outboxRepo,
		logger: logger,
	}
}

func (r *MilestoneRepository) CreateMilestone(ctx context.Context, m *model.Milestone) error {
	r.logger.Debug("Inserting milestone",
		zap.String("scope", m.Scope.String()),
		zap.String("title", m.Title),
	)

	query := `
        INSERT INTO milestones (title, description, start_date, due_date, project_id, group_id, state)
        VALUES ($1, $2, $3, $4, $5, $6, 'active')
        RETURNING id, progress_version, created_at, updated_at
    `
	err := otel.Traced(ctx, "insert", "milestones", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query,
			m.Title,
			m.Description,
			m.StartDate,
			m.DueDate,
			m.Scope.ProjectID,
			m.Scope.GroupID,
		).Scan(&m.ID, &m.ProgressVersion, &m.CreatedAt, &m.UpdatedAt)
	})
	if err != nil {
		mapped := mapPgError(err)
		if mapped == err {
			r.logger.Error("Failed to insert milestone", zap.Error(err))
			return fmt.Errorf("insert milestone: %w", err)
		}
		return fmt.Errorf("create milestone %q in %s: %w", m.Title, m.Scope, mapped)
	}
	m.State = model.StateActive

	r.logger.Info("Milestone inserted successfully",
		zap.Int64("milestone_id", m.ID),
		zap.String("scope", m.Scope.String()),
	)
	return nil
}

func (r *MilestoneRepository) GetMilestone(ctx context.Context, id int64) (*model.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1`

	var m *model.Milestone
	err := otel.Traced(ctx, "select", "milestones", func(ctx context.Context) error {
		var err error
		m, err = scanMilestone(r.db.QueryRow(ctx, query, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("milestone %d: %w", id, model.ErrMilestoneNotFound)
		}
		r.logger.Error("Failed to get milestone", zap.Int64("milestone_id", id), zap.Error(err))
		return nil, fmt.Errorf("get milestone %d: %w", id, err)
	}
	return m, nil
}

func (r *MilestoneRepository) ListMilestones(ctx context.Context, scope model.Scope) ([]*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE scope_kind = $1 AND scope_id = $2
        ORDER BY due_date ASC NULLS LAST, id ASC
    `
	var milestones []*model.Milestone
	err := otel.Traced(ctx, "select", "milestones", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, scope.Kind(), scope.ID())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMilestone(rows)
			if err != nil {
				return err
			}
			milestones = append(milestones, m)
		}
		return rows.Err()
	})
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.String("scope", scope.String()), zap.Error(err))
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	return milestones, nil
}

// CloseMilestone is a conditional update; of two concurrent closes exactly
// one matches state = 'active'.
func (r *MilestoneRepository) CloseMilestone(ctx context.Context, id int64, closedAt time.Time, job *model.CascadeJob) (*model.Milestone, error) {
	query := `
        UPDATE milestones
        SET state = 'closed', closed_at = $2, progress_version = progress_version + 1, updated_at = NOW()
        WHERE id = $1 AND state = 'active'
        RETURNING ` + milestoneColumns

	var closed *model.Milestone
	err := otel.Traced(ctx, "update", "milestones", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			m, err := scanMilestone(tx.QueryRow(ctx, query, id, closedAt))
			if err != nil {
				return err
			}
			if job != nil {
				if _, err := outbox.Enqueue(ctx, tx, r.outbox, cascadeMessage(*job)); err != nil {
					return err
				}
			}
			closed = m
			return nil
		})
	})
	if err == nil {
		r.logger.Info("Milestone closed",
			zap.Int64("milestone_id", id),
			zap.Bool("cascade_enqueued", job != nil),
		)
		return closed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to close milestone", zap.Int64("milestone_id", id), zap.Error(err))
		return nil, fmt.Errorf("close milestone %d: %w", id, err)
	}

	// Nothing matched: either gone or already closed.
	if _, getErr := r.GetMilestone(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("close milestone %d: %w", id, model.ErrNotActive)
}

func (r *MilestoneRepository) BumpProgressVersion(ctx context.Context, id int64) (int64, error) {
	var version int64
	err := otel.Traced(ctx, "update", "milestones", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
            UPDATE milestones SET progress_version = progress_version + 1, updated_at = NOW()
            WHERE id = $1
            RETURNING progress_version
        `, id).Scan(&version)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("milestone %d: %w", id, model.ErrMilestoneNotFound)
		}
		return 0, fmt.Errorf("bump progress version of %d: %w", id, err)
	}
	return version, nil
}

// EnqueueCascade writes the cascade job to the outbox on its own.
func (r *MilestoneRepository) EnqueueCascade(ctx context.Context, job model.CascadeJob) error {
	err := otel.Traced(ctx, "insert", "outbox_events", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			_, err := outbox.Enqueue(ctx, tx, r.outbox, cascadeMessage(job))
			return err
		})
	})
	if err != nil {
		r.logger.Error("Failed to enqueue cascade",
			zap.String("job_id", job.JobID),
			zap.Int64("milestone_id", job.MilestoneID),
			zap.Error(err),
		)
		return fmt.Errorf("enqueue cascade %s: %w", job.JobID, err)
	}
	return nil
}

func cascadeMessage(job model.CascadeJob) outbox.Message {
	return outbox.Message{
		AggregateType: "milestone",
		AggregateID:   job.MilestoneID,
		RoutingKey:    mqcontracts.RoutingKeyCascadeRequested,
		Payload: mqcontracts.CascadeRequestedPayload{
			JobID:       job.JobID,
			MilestoneID: job.MilestoneID,
			ClosedAt:    job.ClosedAt,
			ActorID:     job.ActorID,
			TraceID:     job.TraceID,
		},
	}
}

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var (
		m     model.Milestone
		state string
	)
	err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&m.StartDate,
		&m.DueDate,
		&m.Scope.ProjectID,
		&m.Scope.GroupID,
		&state,
		&m.ClosedAt,
		&m.ProgressVersion,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.State = model.MilestoneState(state)
	return &m, nil
}
