package database

import (
	"github.com/fourmitrack/fourmitrack/internal/database/service"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	snapshot *service.SnapshotService
	alliance *service.AllianceService
}

// NewService creates a new service instance with all services.
func NewService(_ *bun.DB, repository *Repository, logger *zap.Logger) *Service {
	return &Service{
		snapshot: service.NewSnapshot(repository.Precision(), repository.Ranking(), logger),
		alliance: service.NewAlliance(repository.Alliance(), repository.Target(), logger),
	}
}

// Snapshot returns the snapshot service.
func (s *Service) Snapshot() *service.SnapshotService {
	return s.snapshot
}

// Alliance returns the alliance service.
func (s *Service) Alliance() *service.AllianceService {
	return s.alliance
}
