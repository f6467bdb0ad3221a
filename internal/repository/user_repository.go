package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/apperror"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, apperror.ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %q: %w", username, apperror.ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// GetOrCreate returns the user with the given username, creating it when missing.
func (r *UserRepository) GetOrCreate(ctx context.Context, username string) (*models.User, error) {
	user, err := r.GetByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrUserNotFound) {
		return nil, err
	}

	user = &models.User{Username: username}
	if err := r.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListIDs returns the IDs of every user.
func (r *UserRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.User{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

// ListTop returns users ordered by points, highest first.
func (r *UserRepository) ListTop(ctx context.Context, limit int) ([]models.User, error) {
	query := r.db.WithContext(ctx).Order("points DESC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdatePoints writes the aggregated points of a user.
func (r *UserRepository) UpdatePoints(ctx context.Context, id uint, points float64) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumn("points", points)
	if result.Error != nil {
		return fmt.Errorf("failed to update points of user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", id, apperror.ErrUserNotFound)
	}
	return nil
}
