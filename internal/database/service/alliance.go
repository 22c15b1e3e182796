package service

import (
	"context"
	"fmt"

	"github.com/fourmitrack/fourmitrack/internal/database/models"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"go.uber.org/zap"
)

// SyncResult summarizes an alliance membership sync.
type SyncResult struct {
	Added    []string
	Detached []string
}

// AllianceService handles alliance membership logic.
type AllianceService struct {
	alliance *models.AllianceModel
	target   *models.TargetModel
	logger   *zap.Logger
}

// NewAlliance creates a new alliance service.
func NewAlliance(alliance *models.AllianceModel, target *models.TargetModel, logger *zap.Logger) *AllianceService {
	return &AllianceService{
		alliance: alliance,
		target:   target,
		logger:   logger.Named("alliance_service"),
	}
}

// SyncMembers makes the alliance's targets match the given member list.
// Missing members become targets; targets that left are detached, never deleted.
func (s *AllianceService) SyncMembers(
	ctx context.Context, alliance *types.Alliance, members []string,
) (*SyncResult, error) {
	current, err := s.target.ListByAlliance(ctx, alliance.ID)
	if err != nil {
		return nil, err
	}

	known := make(map[string]*types.Target, len(current))
	for _, target := range current {
		known[target.Name] = target
	}

	result := &SyncResult{}
	wanted := make(map[string]struct{}, len(members))

	for _, name := range members {
		wanted[name] = struct{}{}
		if _, ok := known[name]; ok {
			continue
		}

		allianceID := alliance.ID
		if err := s.target.Create(ctx, &types.Target{
			ServerID:   alliance.ServerID,
			Name:       name,
			AllianceID: &allianceID,
		}); err != nil {
			return nil, fmt.Errorf("failed to add member: %w (alliance=%s, name=%s)", err, alliance.Name, name)
		}

		result.Added = append(result.Added, name)
	}

	for _, target := range current {
		if _, ok := wanted[target.Name]; ok {
			continue
		}

		if err := s.target.SetAlliance(ctx, target.ID, nil); err != nil {
			return nil, fmt.Errorf("failed to detach member: %w (alliance=%s, name=%s)", err, alliance.Name, target.Name)
		}

		result.Detached = append(result.Detached, target.Name)
	}

	if len(result.Added) > 0 || len(result.Detached) > 0 {
		s.logger.Info("Synced alliance members",
			zap.String("alliance", alliance.Name),
			zap.Strings("added", result.Added),
			zap.Strings("detached", result.Detached))
	}

	return result, nil
}
