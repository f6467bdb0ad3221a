package models

import (
	"time"
)

// User is the slice of a site user the points engine needs.
// Points is a materialized sum owned by the aggregator.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Points    float64   `gorm:"type:decimal(10,2);not null;default:0" json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}
