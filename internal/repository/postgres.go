package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/pkg/outbox"
)

// Postgres bundles the pgx repositories into a Store.
type Postgres struct {
	*MilestoneRepository
	*ReleaseRepository
	*DependentRepository
	*SettingsRepository
	*FailureRepository
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *Postgres {
	return &Postgres{
		MilestoneRepository: NewMilestoneRepository(db, outboxRepo, logger),
		ReleaseRepository:   NewReleaseRepository(db, logger),
		DependentRepository: NewDependentRepository(db, logger),
		SettingsRepository:  NewSettingsRepository(db),
		FailureRepository:   NewFailureRepository(db, logger),
	}
}
