package database

import (
	"github.com/fourmitrack/fourmitrack/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	server    *models.ServerModel
	alliance  *models.AllianceModel
	target    *models.TargetModel
	precision *models.PrecisionModel
	ranking   *models.RankingModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		server:    models.NewServer(db, logger),
		alliance:  models.NewAlliance(db, logger),
		target:    models.NewTarget(db, logger),
		precision: models.NewPrecision(db, logger),
		ranking:   models.NewRanking(db, logger),
	}
}

// Server returns the server model repository.
func (r *Repository) Server() *models.ServerModel {
	return r.server
}

// Alliance returns the alliance model repository.
func (r *Repository) Alliance() *models.AllianceModel {
	return r.alliance
}

// Target returns the target model repository.
func (r *Repository) Target() *models.TargetModel {
	return r.target
}

// Precision returns the precision snapshot model repository.
func (r *Repository) Precision() *models.PrecisionModel {
	return r.precision
}

// Ranking returns the ranking snapshot model repository.
func (r *Repository) Ranking() *models.RankingModel {
	return r.ranking
}
