package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"milestone-service/internal/model"
	"milestone-service/pkg/otel"
)

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// WeightedEnabled defaults to false for scopes without a settings row.
func (r *SettingsRepository) WeightedEnabled(ctx context.Context, scope model.Scope) (bool, error) {
	var enabled bool
	err := otel.Traced(ctx, "select", "progress_settings", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
            SELECT weighted_enabled FROM progress_settings
            WHERE scope_kind = $1 AND scope_id = $2
        `, scope.Kind(), scope.ID()).Scan(&enabled)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("weighted setting of %s: %w", scope, err)
	}
	return enabled, nil
}

func (r *SettingsRepository) SetWeighted(ctx context.Context, scope model.Scope, enabled bool) error {
	err := otel.Traced(ctx, "upsert", "progress_settings", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
            INSERT INTO progress_settings (scope_kind, scope_id, weighted_enabled)
            VALUES ($1, $2, $3)
            ON CONFLICT (scope_kind, scope_id) DO UPDATE SET weighted_enabled = EXCLUDED.weighted_enabled
        `, scope.Kind(), scope.ID(), enabled)
		return err
	})
	if err != nil {
		return fmt.Errorf("set weighted for %s: %w", scope, err)
	}
	return nil
}
