// Package positions keeps each list a dense 1..N ranking while levels are
// inserted, moved, removed and relisted.
package positions

import (
	"context"
	"fmt"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/apperror"
)

// parkedRank is a rank no level ever holds; a moving level waits there while
// its neighbours shift.
const parkedRank = 0

// LevelStore is the subset of the level repository the shifter needs.
type LevelStore interface {
	GetByID(ctx context.Context, id uint) (*models.Level, error)
	CountByList(ctx context.Context, list models.ListType) (int, error)
	Create(ctx context.Context, level *models.Level) error
	Delete(ctx context.Context, id uint) error
	ShiftRanks(ctx context.Context, list models.ListType, from, to, delta int) error
	SetPosition(ctx context.Context, id uint, list models.ListType, rank int) error
}

// Placement describes where a level was and where it ended up.
type Placement struct {
	LevelID   uint
	LevelName string
	FromList  models.ListType
	FromRank  int
	ToList    models.ListType
	ToRank    int
}

// Changed reports whether the level actually moved.
func (p Placement) Changed() bool {
	return p.FromList != p.ToList || p.FromRank != p.ToRank
}

// Touched returns the lists whose ranks changed, in lock order.
func (p Placement) Touched() []models.ListType {
	var lists []models.ListType
	for _, l := range models.Lists {
		if (p.FromList == l || p.ToList == l) && p.Changed() {
			lists = append(lists, l)
		}
	}
	return lists
}

// Shifter performs rank-preserving mutations against a LevelStore.
// It does no locking; callers serialize mutations per list.
type Shifter struct {
	store LevelStore
}

// NewShifter creates a shifter over store.
func NewShifter(store LevelStore) *Shifter {
	return &Shifter{store: store}
}

// Insert stores level at rank in list, pushing every level ranked at or below it down by one.
func (s *Shifter) Insert(ctx context.Context, list models.ListType, level *models.Level, rank int) error {
	if !list.Valid() {
		return fmt.Errorf("%w: unknown list %q", apperror.ErrInvalidInput, list)
	}

	count, err := s.store.CountByList(ctx, list)
	if err != nil {
		return err
	}
	if rank < 1 || rank > count+1 {
		return fmt.Errorf("%w: rank %d outside 1..%d of %s", apperror.ErrInvalidRank, rank, count+1, list)
	}

	if err := s.store.ShiftRanks(ctx, list, rank, count, 1); err != nil {
		return err
	}

	level.List = list
	level.Rank = rank
	return s.store.Create(ctx, level)
}

// Move places the level at newRank of newList. Within one list the levels
// between the old and new rank shift by one to close and open the gap; across
// lists the level is removed from the old list and inserted into the new one.
func (s *Shifter) Move(ctx context.Context, id uint, newList models.ListType, newRank int) (Placement, error) {
	level, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Placement{}, err
	}
	return s.move(ctx, level, newList, newRank)
}

// RelistToLegacy moves the level to the end of the legacy list.
func (s *Shifter) RelistToLegacy(ctx context.Context, id uint) (Placement, error) {
	level, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Placement{}, err
	}

	count, err := s.store.CountByList(ctx, models.ListLegacy)
	if err != nil {
		return Placement{}, err
	}

	target := count + 1
	if level.List == models.ListLegacy {
		target = count
	}
	return s.move(ctx, level, models.ListLegacy, target)
}

// Remove deletes the level and closes the gap it leaves.
func (s *Shifter) Remove(ctx context.Context, id uint) (Placement, error) {
	level, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Placement{}, err
	}

	count, err := s.store.CountByList(ctx, level.List)
	if err != nil {
		return Placement{}, err
	}

	if err := s.store.Delete(ctx, level.ID); err != nil {
		return Placement{}, err
	}
	if err := s.store.ShiftRanks(ctx, level.List, level.Rank+1, count, -1); err != nil {
		return Placement{}, err
	}

	return Placement{
		LevelID:   level.ID,
		LevelName: level.Name,
		FromList:  level.List,
		FromRank:  level.Rank,
	}, nil
}

func (s *Shifter) move(ctx context.Context, level *models.Level, newList models.ListType, newRank int) (Placement, error) {
	placement := Placement{
		LevelID:   level.ID,
		LevelName: level.Name,
		FromList:  level.List,
		FromRank:  level.Rank,
		ToList:    newList,
		ToRank:    newRank,
	}

	if !newList.Valid() {
		return Placement{}, fmt.Errorf("%w: unknown list %q", apperror.ErrInvalidInput, newList)
	}

	newCount, err := s.store.CountByList(ctx, newList)
	if err != nil {
		return Placement{}, err
	}

	maxRank := newCount + 1
	if newList == level.List {
		maxRank = newCount
	}
	if newRank < 1 || newRank > maxRank {
		return Placement{}, fmt.Errorf("%w: rank %d outside 1..%d of %s", apperror.ErrInvalidRank, newRank, maxRank, newList)
	}

	if !placement.Changed() {
		return placement, nil
	}

	if err := s.store.SetPosition(ctx, level.ID, level.List, parkedRank); err != nil {
		return Placement{}, err
	}

	if newList == level.List {
		if newRank < level.Rank {
			err = s.store.ShiftRanks(ctx, newList, newRank, level.Rank-1, 1)
		} else {
			err = s.store.ShiftRanks(ctx, newList, level.Rank+1, newRank, -1)
		}
		if err != nil {
			return Placement{}, err
		}
	} else {
		oldCount, err := s.store.CountByList(ctx, level.List)
		if err != nil {
			return Placement{}, err
		}
		if err := s.store.ShiftRanks(ctx, level.List, level.Rank+1, oldCount, -1); err != nil {
			return Placement{}, err
		}
		if err := s.store.ShiftRanks(ctx, newList, newRank, newCount, 1); err != nil {
			return Placement{}, err
		}
	}

	if err := s.store.SetPosition(ctx, level.ID, newList, newRank); err != nil {
		return Placement{}, err
	}
	return placement, nil
}
