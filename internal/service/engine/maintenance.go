package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimd54/levellist/internal/metrics"
	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/apperror"
	"github.com/aimd54/levellist/pkg/validator"
)

// RecomputeUser rewrites one user's total from their approved records.
func (e *Engine) RecomputeUser(ctx context.Context, userID uint) (float64, error) {
	unlock := e.lockLists(false, models.Lists...)
	defer unlock()

	if _, err := e.store.Users.GetByID(ctx, userID); err != nil {
		return 0, err
	}

	total, err := e.recomputeUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	metrics.RecordUserRecomputes("manual", 1)
	return total, nil
}

// RecomputeAllUsers rewrites every user's total and returns how many users
// were processed. It is the repair path for drift in the affected-users
// optimization.
func (e *Engine) RecomputeAllUsers(ctx context.Context) (int, error) {
	unlock := e.lockLists(false, models.Lists...)
	defer unlock()

	ids, err := e.store.Users.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	if err := e.recomputeUsers(ctx, ids); err != nil {
		return 0, err
	}
	metrics.RecordUserRecomputes("full", len(ids))

	e.log.Info().Int("users", len(ids)).Msg("Recomputed all user points")
	return len(ids), nil
}

// VerifyLists checks that every list is densely ranked and every level's
// points match its rank. Problems are returned joined under ErrListInconsistent.
func (e *Engine) VerifyLists(ctx context.Context) error {
	unlock := e.lockLists(false, models.Lists...)
	defer unlock()

	var problems []error
	for _, list := range models.Lists {
		levels, err := e.store.Levels.ListByList(ctx, list)
		if err != nil {
			return err
		}
		metrics.SetListSize(string(list), len(levels))

		for i, level := range levels {
			if level.Rank != i+1 {
				problems = append(problems, fmt.Errorf("%s: level %d at rank %d, expected %d", list, level.ID, level.Rank, i+1))
				continue
			}
			want, err := e.opts.Formula.ForLevel(list, level.Rank)
			if err != nil {
				return err
			}
			if level.Points != want {
				problems = append(problems, fmt.Errorf("%s: level %d has %.2f points, expected %.2f", list, level.ID, level.Points, want))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	e.log.Error().Int("problems", len(problems)).Msg("List verification failed")
	return fmt.Errorf("%w: %w", apperror.ErrListInconsistent, errors.Join(problems...))
}

type registration struct {
	Username string `validate:"required,max=255"`
}

// RegisterUser returns the user with username, creating it when missing.
func (e *Engine) RegisterUser(ctx context.Context, username string) (*models.User, error) {
	if err := validator.Struct(registration{Username: username}); err != nil {
		return nil, err
	}
	return e.store.Users.GetOrCreate(ctx, username)
}

// GetUser returns one user.
func (e *Engine) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return e.store.Users.GetByID(ctx, id)
}

// Leaderboard returns users ordered by points, highest first.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	return e.store.Users.ListTop(ctx, limit)
}
