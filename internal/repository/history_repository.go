package repository

import (
	"context"
	"fmt"

	"github.com/aimd54/levellist/internal/models"
)

// HistoryRepository stores the level placement history.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create appends a history entry.
func (r *HistoryRepository) Create(ctx context.Context, entry *models.LevelHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create history entry: %w", err)
	}
	return nil
}

// ListByLevel returns the history of one level, newest first.
func (r *HistoryRepository) ListByLevel(ctx context.Context, levelID uint, limit int) ([]models.LevelHistory, error) {
	query := r.db.WithContext(ctx).Where("level_id = ?", levelID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.LevelHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list history of level %d: %w", levelID, err)
	}
	return entries, nil
}

// ListRecent returns the latest history entries across all levels.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]models.LevelHistory, error) {
	var entries []models.LevelHistory
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent history: %w", err)
	}
	return entries, nil
}
