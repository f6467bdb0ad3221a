package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/apperror"
)

// LevelRepository is the position store: it persists levels and their ranks.
type LevelRepository struct {
	db *DB
}

// NewLevelRepository creates a new level repository.
func NewLevelRepository(db *DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// Create inserts a new level.
func (r *LevelRepository) Create(ctx context.Context, level *models.Level) error {
	if err := r.db.WithContext(ctx).Create(level).Error; err != nil {
		return fmt.Errorf("failed to create level: %w", err)
	}
	return nil
}

// GetByID retrieves a level by ID.
func (r *LevelRepository) GetByID(ctx context.Context, id uint) (*models.Level, error) {
	var level models.Level
	if err := r.db.WithContext(ctx).First(&level, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("level %d: %w", id, apperror.ErrLevelNotFound)
		}
		return nil, fmt.Errorf("failed to get level by id %d: %w", id, err)
	}
	return &level, nil
}

// GetByIDs retrieves the levels with the given IDs. Missing IDs are skipped.
func (r *LevelRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Level, error) {
	if len(ids) == 0 {
		return []models.Level{}, nil
	}
	var levels []models.Level
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("failed to get levels by ids: %w", err)
	}
	return levels, nil
}

// ListByList returns every level of a list ordered by rank.
func (r *LevelRepository) ListByList(ctx context.Context, list models.ListType) ([]models.Level, error) {
	var levels []models.Level
	err := r.db.WithContext(ctx).
		Where("list = ?", list).
		Order("list_rank ASC").
		Find(&levels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s levels: %w", list, err)
	}
	return levels, nil
}

// CountByList returns the number of levels in a list.
func (r *LevelRepository) CountByList(ctx context.Context, list models.ListType) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Level{}).Where("list = ?", list).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s levels: %w", list, err)
	}
	return int(count), nil
}

// ShiftRanks adds delta to the rank of every level of list ranked within [from, to].
//
// The update runs in two statements: ranks are first moved to negative values
// and then flipped back, so the (list, rank) unique index never sees a
// transient duplicate. The caller must have freed the destination slot.
func (r *LevelRepository) ShiftRanks(ctx context.Context, list models.ListType, from, to, delta int) error {
	if from > to || delta == 0 {
		return nil
	}

	db := r.db.WithContext(ctx)
	err := db.Model(&models.Level{}).
		Where("list = ? AND list_rank BETWEEN ? AND ?", list, from, to).
		UpdateColumn("list_rank", gorm.Expr("-(list_rank + ?)", delta)).Error
	if err != nil {
		return fmt.Errorf("failed to shift %s ranks %d..%d: %w", list, from, to, err)
	}

	err = db.Model(&models.Level{}).
		Where("list = ? AND list_rank < 0", list).
		UpdateColumn("list_rank", gorm.Expr("-list_rank")).Error
	if err != nil {
		return fmt.Errorf("failed to restore %s ranks: %w", list, err)
	}
	return nil
}

// SetPosition places a level at (list, rank).
func (r *LevelRepository) SetPosition(ctx context.Context, id uint, list models.ListType, rank int) error {
	result := r.db.WithContext(ctx).Model(&models.Level{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"list": list, "list_rank": rank})
	if result.Error != nil {
		return fmt.Errorf("failed to set position of level %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("level %d: %w", id, apperror.ErrLevelNotFound)
	}
	return nil
}

// UpdatePoints writes the cached points of a level.
func (r *LevelRepository) UpdatePoints(ctx context.Context, id uint, points float64) error {
	err := r.db.WithContext(ctx).Model(&models.Level{}).
		Where("id = ?", id).
		UpdateColumn("points", points).Error
	if err != nil {
		return fmt.Errorf("failed to update points of level %d: %w", id, err)
	}
	return nil
}

// UpdateDetails saves the metadata columns of a level. Rank, list and points are left untouched.
func (r *LevelRepository) UpdateDetails(ctx context.Context, level *models.Level) error {
	err := r.db.WithContext(ctx).Model(&models.Level{}).
		Where("id = ?", level.ID).
		Updates(map[string]interface{}{
			"name":                   level.Name,
			"creator":                level.Creator,
			"verifier_name":          level.VerifierName,
			"verification_video":     level.VerificationVideo,
			"min_completion_percent": level.MinCompletionPercent,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update level %d: %w", level.ID, err)
	}
	return nil
}

// Delete removes a level.
func (r *LevelRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Level{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete level %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("level %d: %w", id, apperror.ErrLevelNotFound)
	}
	return nil
}
