package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/levellist/internal/metrics"
	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/notify"
	"github.com/aimd54/levellist/internal/service/positions"
	"github.com/aimd54/levellist/pkg/apperror"
	"github.com/aimd54/levellist/pkg/validator"
)

// mutation is the transactional body of a level operation. It returns the
// lists whose ranks changed and any users that need re-aggregation on top of
// those holding records on levels whose points changed.
type mutation func(s *services) (touched []models.ListType, users []uint, err error)

// mutate runs fn and the points recalculation of the touched lists in one
// transaction, then drops the list cache and re-aggregates affected users.
// Callers hold the write locks of every list fn can touch.
func (e *Engine) mutate(ctx context.Context, operation string, fn mutation) error {
	start := time.Now()
	defer func() { metrics.ObserveRecalculation(operation, time.Since(start)) }()

	var touched []models.ListType
	var affected []uint

	err := e.inTx(ctx, func(s *services) error {
		var extra []uint
		var err error
		touched, extra, err = fn(s)
		if err != nil {
			return err
		}

		var changed []uint
		for _, list := range touched {
			ids, err := s.recalc.RecalculateListPoints(ctx, list)
			if err != nil {
				return err
			}
			changed = append(changed, ids...)
		}

		users, err := s.recalc.AffectedUsers(ctx, changed)
		if err != nil {
			return err
		}
		affected = mergeIDs(users, extra)
		return nil
	})
	if err != nil {
		return err
	}

	e.cache.Invalidate(ctx)
	e.refreshListSizes(ctx, touched)

	if !e.opts.AffectedUsersOnly && (len(touched) > 0 || len(affected) > 0) {
		all, err := e.store.Users.ListIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users for full recompute: %w", err)
		}
		affected = all
	}

	if err := e.recomputeUsers(ctx, affected); err != nil {
		return err
	}
	metrics.RecordUserRecomputes("list_change", len(affected))

	e.log.Debug().
		Str("operation", operation).
		Int("lists", len(touched)).
		Int("users", len(affected)).
		Dur("duration", time.Since(start)).
		Msg("Applied level mutation")

	return nil
}

func (e *Engine) refreshListSizes(ctx context.Context, lists []models.ListType) {
	for _, l := range lists {
		if n, err := e.store.Levels.CountByList(ctx, l); err == nil {
			metrics.SetListSize(string(l), n)
		}
	}
}

func mergeIDs(a, b []uint) []uint {
	seen := make(map[uint]bool, len(a)+len(b))
	out := make([]uint, 0, len(a)+len(b))
	for _, ids := range [][]uint{a, b} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func normalizeDetails(d models.LevelDetails) models.LevelDetails {
	if d.MinCompletionPercent == 0 {
		d.MinCompletionPercent = 100
	}
	return d
}

func validList(list models.ListType) error {
	if !list.Valid() {
		return fmt.Errorf("%w: unknown list %q", apperror.ErrInvalidInput, list)
	}
	return nil
}

// AddLevel inserts a level at rank of list and returns its ID.
func (e *Engine) AddLevel(ctx context.Context, list models.ListType, rank int, details models.LevelDetails) (id uint, err error) {
	defer func() { metrics.RecordLevelMutation("add", err) }()

	details = normalizeDetails(details)
	if err := validator.Struct(details); err != nil {
		return 0, err
	}
	if err := validList(list); err != nil {
		return 0, err
	}

	unlock := e.lockLists(true, list)
	defer unlock()

	level := &models.Level{}
	details.Apply(level)

	err = e.mutate(ctx, "add", func(s *services) ([]models.ListType, []uint, error) {
		if err := s.shifter.Insert(ctx, list, level, rank); err != nil {
			return nil, nil, err
		}
		return []models.ListType{list}, nil, nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info().
		Uint("level_id", level.ID).
		Str("name", level.Name).
		Str("list", string(list)).
		Int("rank", rank).
		Msg("Level added")

	e.recordHistory(ctx, &models.LevelHistory{
		LevelID:   level.ID,
		LevelName: level.Name,
		Action:    models.HistoryAdded,
		ToList:    list,
		ToRank:    rank,
	})
	e.notify(ctx, notify.LevelAdded, map[string]interface{}{
		"level_id": level.ID,
		"level":    level.Name,
		"list":     string(list),
		"rank":     rank,
	})

	return level.ID, nil
}

// MoveLevel places a level at rank of list, shifting its neighbours.
func (e *Engine) MoveLevel(ctx context.Context, id uint, list models.ListType, rank int) (err error) {
	defer func() { metrics.RecordLevelMutation("move", err) }()

	if err := validList(list); err != nil {
		return err
	}

	_, unlock, err := e.lockLevel(ctx, id, list)
	if err != nil {
		return err
	}
	defer unlock()

	return e.applyMove(ctx, "move", models.HistoryMoved, func(s *services) (positions.Placement, error) {
		return s.shifter.Move(ctx, id, list, rank)
	})
}

// RelistToLegacy moves a level to the end of the legacy list.
func (e *Engine) RelistToLegacy(ctx context.Context, id uint) (err error) {
	defer func() { metrics.RecordLevelMutation("relist", err) }()

	_, unlock, err := e.lockLevel(ctx, id, models.ListLegacy)
	if err != nil {
		return err
	}
	defer unlock()

	return e.applyMove(ctx, "relist", models.HistoryRelisted, func(s *services) (positions.Placement, error) {
		return s.shifter.RelistToLegacy(ctx, id)
	})
}

func (e *Engine) applyMove(ctx context.Context, operation, action string, move func(s *services) (positions.Placement, error)) error {
	var placement positions.Placement
	err := e.mutate(ctx, operation, func(s *services) ([]models.ListType, []uint, error) {
		var err error
		if placement, err = move(s); err != nil {
			return nil, nil, err
		}
		return placement.Touched(), nil, nil
	})
	if err != nil {
		return err
	}
	if !placement.Changed() {
		return nil
	}

	e.log.Info().
		Uint("level_id", placement.LevelID).
		Str("from_list", string(placement.FromList)).
		Int("from_rank", placement.FromRank).
		Str("to_list", string(placement.ToList)).
		Int("to_rank", placement.ToRank).
		Msg("Level moved")

	e.recordHistory(ctx, &models.LevelHistory{
		LevelID:   placement.LevelID,
		LevelName: placement.LevelName,
		Action:    action,
		FromList:  placement.FromList,
		FromRank:  placement.FromRank,
		ToList:    placement.ToList,
		ToRank:    placement.ToRank,
	})
	e.notify(ctx, notify.LevelMoved, map[string]interface{}{
		"level_id":  placement.LevelID,
		"level":     placement.LevelName,
		"from_list": string(placement.FromList),
		"from_rank": placement.FromRank,
		"to_list":   string(placement.ToList),
		"to_rank":   placement.ToRank,
	})
	return nil
}

// DeleteLevel removes a level and its records, closing the gap in its list.
func (e *Engine) DeleteLevel(ctx context.Context, id uint) (err error) {
	defer func() { metrics.RecordLevelMutation("delete", err) }()

	_, unlock, err := e.lockLevel(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	var placement positions.Placement
	err = e.mutate(ctx, "delete", func(s *services) ([]models.ListType, []uint, error) {
		holders, err := s.store.Records.UserIDsWithApprovedOnLevels(ctx, []uint{id})
		if err != nil {
			return nil, nil, err
		}
		if err := s.store.Records.DeleteByLevel(ctx, id); err != nil {
			return nil, nil, err
		}
		if placement, err = s.shifter.Remove(ctx, id); err != nil {
			return nil, nil, err
		}
		return placement.Touched(), holders, nil
	})
	if err != nil {
		return err
	}

	e.log.Info().
		Uint("level_id", id).
		Str("list", string(placement.FromList)).
		Int("rank", placement.FromRank).
		Msg("Level deleted")

	e.recordHistory(ctx, &models.LevelHistory{
		LevelID:   id,
		LevelName: placement.LevelName,
		Action:    models.HistoryRemoved,
		FromList:  placement.FromList,
		FromRank:  placement.FromRank,
	})
	e.notify(ctx, notify.LevelRemoved, map[string]interface{}{
		"level_id": id,
		"level":    placement.LevelName,
		"list":     string(placement.FromList),
		"rank":     placement.FromRank,
	})
	return nil
}

// EditLevel replaces a level's metadata. Rank and list are unchanged; a new
// minimum completion re-aggregates users holding approved records on the level.
func (e *Engine) EditLevel(ctx context.Context, id uint, details models.LevelDetails) (err error) {
	defer func() { metrics.RecordLevelMutation("edit", err) }()

	details = normalizeDetails(details)
	if err := validator.Struct(details); err != nil {
		return err
	}

	_, unlock, err := e.lockLevel(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	var edited *models.Level
	err = e.mutate(ctx, "edit", func(s *services) ([]models.ListType, []uint, error) {
		level, err := s.store.Levels.GetByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		previousMin := level.MinCompletionPercent
		details.Apply(level)
		if err := s.store.Levels.UpdateDetails(ctx, level); err != nil {
			return nil, nil, err
		}
		edited = level

		if level.MinCompletionPercent == previousMin {
			return nil, nil, nil
		}
		holders, err := s.store.Records.UserIDsWithApprovedOnLevels(ctx, []uint{id})
		return nil, holders, err
	})
	if err != nil {
		return err
	}

	e.log.Info().Uint("level_id", id).Str("name", edited.Name).Msg("Level edited")
	e.recordHistory(ctx, &models.LevelHistory{
		LevelID:   id,
		LevelName: edited.Name,
		Action:    models.HistoryEdited,
		FromList:  edited.List,
		FromRank:  edited.Rank,
		ToList:    edited.List,
		ToRank:    edited.Rank,
	})
	return nil
}

// GetOrderedList returns the levels of list in rank order from the cache.
func (e *Engine) GetOrderedList(ctx context.Context, list models.ListType) ([]models.Level, error) {
	if err := validList(list); err != nil {
		return nil, err
	}

	unlock := e.lockLists(false, list)
	defer unlock()

	return e.cache.Get(ctx, list, e.store.Levels.ListByList)
}

// GetLevel returns one level.
func (e *Engine) GetLevel(ctx context.Context, id uint) (*models.Level, error) {
	return e.store.Levels.GetByID(ctx, id)
}

// LevelHistory returns the placement history of a level, newest first.
func (e *Engine) LevelHistory(ctx context.Context, id uint, limit int) ([]models.LevelHistory, error) {
	return e.store.History.ListByLevel(ctx, id, limit)
}

// RecentHistory returns the latest placement changes across all levels.
func (e *Engine) RecentHistory(ctx context.Context, limit int) ([]models.LevelHistory, error) {
	return e.store.History.ListRecent(ctx, limit)
}
