// Package recalculator rewrites cached level points from ranks.
package recalculator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/service/points"
)

// LevelRepository is the level access the recalculator needs.
type LevelRepository interface {
	ListByList(ctx context.Context, list models.ListType) ([]models.Level, error)
	UpdatePoints(ctx context.Context, id uint, points float64) error
}

// RecordRepository is the record access the recalculator needs.
type RecordRepository interface {
	UserIDsWithApprovedOnLevels(ctx context.Context, levelIDs []uint) ([]uint, error)
}

// Service recomputes level points for whole lists.
type Service struct {
	levels  LevelRepository
	records RecordRepository
	formula points.Formula
	log     *zerolog.Logger
}

// NewService creates a new recalculator.
func NewService(levels LevelRepository, records RecordRepository, formula points.Formula, log *zerolog.Logger) *Service {
	return &Service{
		levels:  levels,
		records: records,
		formula: formula,
		log:     log,
	}
}

// RecalculateListPoints sets the points of every level in list from its rank
// and returns the IDs of levels whose points changed.
func (s *Service) RecalculateListPoints(ctx context.Context, list models.ListType) ([]uint, error) {
	levels, err := s.levels.ListByList(ctx, list)
	if err != nil {
		return nil, err
	}

	var changed []uint
	for _, level := range levels {
		want, err := s.formula.ForLevel(level.List, level.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to compute points of level %d: %w", level.ID, err)
		}
		if want == level.Points {
			continue
		}
		if err := s.levels.UpdatePoints(ctx, level.ID, want); err != nil {
			return nil, err
		}
		changed = append(changed, level.ID)
	}

	s.log.Debug().
		Str("list", string(list)).
		Int("levels", len(levels)).
		Int("changed", len(changed)).
		Msg("Recalculated list points")

	return changed, nil
}

// AffectedUsers returns the users holding approved records on any of levelIDs.
// Partial completions count too, since their award is a share of the level's points.
func (s *Service) AffectedUsers(ctx context.Context, levelIDs []uint) ([]uint, error) {
	if len(levelIDs) == 0 {
		return nil, nil
	}
	return s.records.UserIDsWithApprovedOnLevels(ctx, levelIDs)
}
