package models

import (
	"time"
)

// RecordStatus is the lifecycle state of a record.
type RecordStatus string

// Record statuses. Approved and Rejected are terminal.
const (
	RecordPending  RecordStatus = "pending"
	RecordApproved RecordStatus = "approved"
	RecordRejected RecordStatus = "rejected"
)

// Record is one user's claimed progress on one level.
type Record struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	UserID          uint         `gorm:"not null;index" json:"user_id"`
	LevelID         uint         `gorm:"not null;index" json:"level_id"`
	Progress        int          `gorm:"not null" json:"progress"`
	VideoRef        string       `gorm:"type:text" json:"video_ref"`
	Status          RecordStatus `gorm:"size:20;not null;index" json:"status"`
	IsVerifierAward bool         `gorm:"not null;default:false" json:"is_verifier_award"`
	ApprovedBy      string       `gorm:"size:255" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	RejectedBy      string       `gorm:"size:255" json:"rejected_by,omitempty"`
	RejectedReason  string       `gorm:"type:text" json:"rejected_reason,omitempty"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TableName specifies the table name for Record model.
func (Record) TableName() string {
	return "records"
}

// IsTerminal reports whether the record has left the pending state.
func (r *Record) IsTerminal() bool {
	return r.Status == RecordApproved || r.Status == RecordRejected
}

// IsCompletion reports whether the record is an approved full clear.
func (r *Record) IsCompletion() bool {
	return r.Status == RecordApproved && r.Progress == 100
}
