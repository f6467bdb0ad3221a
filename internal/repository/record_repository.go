package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/apperror"
)

// RecordRepository is the record ledger store.
type RecordRepository struct {
	db *DB
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create inserts a new record.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by ID.
func (r *RecordRepository) GetByID(ctx context.Context, id uint) (*models.Record, error) {
	var record models.Record
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("record %d: %w", id, apperror.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get record by id %d: %w", id, err)
	}
	return &record, nil
}

// Update saves a record.
func (r *RecordRepository) Update(ctx context.Context, record *models.Record) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to update record %d: %w", record.ID, err)
	}
	return nil
}

// Delete removes a record.
func (r *RecordRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Record{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete record %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("record %d: %w", id, apperror.ErrRecordNotFound)
	}
	return nil
}

// DeleteByLevel removes every record of a level.
func (r *RecordRepository) DeleteByLevel(ctx context.Context, levelID uint) error {
	if err := r.db.WithContext(ctx).Where("level_id = ?", levelID).Delete(&models.Record{}).Error; err != nil {
		return fmt.Errorf("failed to delete records of level %d: %w", levelID, err)
	}
	return nil
}

// ListApprovedByUser returns the approved records of a user.
func (r *RecordRepository) ListApprovedByUser(ctx context.Context, userID uint) ([]models.Record, error) {
	var records []models.Record
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.RecordApproved).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list approved records of user %d: %w", userID, err)
	}
	return records, nil
}

// ListByUser returns every record of a user, newest first.
func (r *RecordRepository) ListByUser(ctx context.Context, userID uint) ([]models.Record, error) {
	var records []models.Record
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list records of user %d: %w", userID, err)
	}
	return records, nil
}

// ListPending returns the oldest pending records, up to limit (0 = no limit).
func (r *RecordRepository) ListPending(ctx context.Context, limit int) ([]models.Record, error) {
	query := r.db.WithContext(ctx).Where("status = ?", models.RecordPending).Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []models.Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	return records, nil
}

// UserIDsWithApprovedOnLevels returns the distinct owners of approved records on the given levels.
func (r *RecordRepository) UserIDsWithApprovedOnLevels(ctx context.Context, levelIDs []uint) ([]uint, error) {
	if len(levelIDs) == 0 {
		return []uint{}, nil
	}
	var userIDs []uint
	err := r.db.WithContext(ctx).Model(&models.Record{}).
		Distinct("user_id").
		Where("level_id IN ? AND status = ?", levelIDs, models.RecordApproved).
		Order("user_id ASC").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find users with approved records: %w", err)
	}
	return userIDs, nil
}

// HasVerifierAward checks if a verifier award already exists for (user, level).
func (r *RecordRepository) HasVerifierAward(ctx context.Context, userID, levelID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Record{}).
		Where("user_id = ? AND level_id = ? AND is_verifier_award = ?", userID, levelID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check verifier award: %w", err)
	}
	return count > 0, nil
}

// HasCompletion checks if the user holds an approved 100% record on the level.
func (r *RecordRepository) HasCompletion(ctx context.Context, userID, levelID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Record{}).
		Where("user_id = ? AND level_id = ? AND status = ? AND progress = ?", userID, levelID, models.RecordApproved, 100).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return count > 0, nil
}
