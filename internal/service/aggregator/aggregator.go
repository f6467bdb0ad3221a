// Package aggregator recomputes user point totals from approved records.
package aggregator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/service/points"
)

// RecordRepository is the record access the aggregator needs.
type RecordRepository interface {
	ListApprovedByUser(ctx context.Context, userID uint) ([]models.Record, error)
}

// LevelRepository is the level access the aggregator needs.
type LevelRepository interface {
	GetByIDs(ctx context.Context, ids []uint) ([]models.Level, error)
}

// UserRepository is the user access the aggregator needs.
type UserRepository interface {
	ListIDs(ctx context.Context) ([]uint, error)
	UpdatePoints(ctx context.Context, id uint, points float64) error
}

// Service is the only writer of users.points.
type Service struct {
	records RecordRepository
	levels  LevelRepository
	users   UserRepository
	formula points.Formula
	log     *zerolog.Logger
}

// NewService creates a new aggregator service.
func NewService(records RecordRepository, levels LevelRepository, users UserRepository, formula points.Formula, log *zerolog.Logger) *Service {
	return &Service{
		records: records,
		levels:  levels,
		users:   users,
		formula: formula,
		log:     log,
	}
}

// Total sums the awarded points of the user's approved records against
// current level points, without persisting it.
func (s *Service) Total(ctx context.Context, userID uint) (float64, error) {
	records, err := s.records.ListApprovedByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.LevelID)
	}
	levels, err := s.levels.GetByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	byID := make(map[uint]*models.Level, len(levels))
	for i := range levels {
		byID[levels[i].ID] = &levels[i]
	}

	var total float64
	for i := range records {
		level, ok := byID[records[i].LevelID]
		if !ok {
			s.log.Warn().
				Uint("record_id", records[i].ID).
				Uint("level_id", records[i].LevelID).
				Msg("Approved record references a missing level")
			continue
		}
		total += s.formula.Awarded(&records[i], level)
	}

	return s.formula.Round(total), nil
}

// Recompute rewrites the user's total and returns it.
func (s *Service) Recompute(ctx context.Context, userID uint) (float64, error) {
	total, err := s.Total(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate points of user %d: %w", userID, err)
	}

	if err := s.users.UpdatePoints(ctx, userID, total); err != nil {
		return 0, err
	}

	s.log.Debug().
		Uint("user_id", userID).
		Float64("points", total).
		Msg("Recomputed user points")

	return total, nil
}

// RecomputeMany recomputes each of userIDs, stopping at the first error.
func (s *Service) RecomputeMany(ctx context.Context, userIDs []uint) error {
	for _, id := range userIDs {
		if _, err := s.Recompute(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeAll recomputes every user and returns how many were processed.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	if err := s.RecomputeMany(ctx, ids); err != nil {
		return 0, err
	}

	s.log.Info().
		Int("users", len(ids)).
		Msg("Recomputed all user points")

	return len(ids), nil
}
