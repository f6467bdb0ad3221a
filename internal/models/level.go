// Package models defines the persisted entities of the level list.
package models

import (
	"fmt"
	"time"
)

// ListType identifies one of the two ranked lists.
type ListType string

// The two lists a level can belong to.
const (
	ListMain   ListType = "main"
	ListLegacy ListType = "legacy"
)

// Lists is the fixed set of lists, in lock order.
var Lists = []ListType{ListMain, ListLegacy}

// Valid reports whether l names a known list.
func (l ListType) Valid() bool {
	return l == ListMain || l == ListLegacy
}

// ParseList converts user input into a ListType.
func ParseList(s string) (ListType, error) {
	l := ListType(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown list %q (valid: main, legacy)", s)
	}
	return l, nil
}

// Level is one ranked item. Rank is 1-based and unique within its list.
// Points is derived from Rank and only written by the points recalculator.
type Level struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Name                 string    `gorm:"size:255;not null" json:"name"`
	Creator              string    `gorm:"size:255" json:"creator"`
	VerifierName         string    `gorm:"column:verifier_name;size:255" json:"verifier_name"`
	VerificationVideo    string    `gorm:"type:text" json:"verification_video"`
	List                 ListType  `gorm:"column:list;size:20;not null;uniqueIndex:idx_levels_list_rank,priority:1" json:"list"`
	Rank                 int       `gorm:"column:list_rank;not null;uniqueIndex:idx_levels_list_rank,priority:2" json:"rank"`
	Points               float64   `gorm:"type:decimal(10,2);not null;default:0" json:"points"`
	MinCompletionPercent int       `gorm:"not null;default:100" json:"min_completion_percent"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName specifies the table name for Level model.
func (Level) TableName() string {
	return "levels"
}

// LevelDetails carries the admin-editable metadata of a level.
type LevelDetails struct {
	Name                 string `json:"name" yaml:"name" validate:"required,max=255"`
	Creator              string `json:"creator" yaml:"creator" validate:"max=255"`
	VerifierName         string `json:"verifier" yaml:"verifier" validate:"max=255"`
	VerificationVideo    string `json:"verification_video" yaml:"verification_video" validate:"omitempty,url"`
	MinCompletionPercent int    `json:"min_completion_percent" yaml:"min_completion_percent" validate:"min=1,max=100"`
}

// Apply copies the details onto the level.
func (d LevelDetails) Apply(l *Level) {
	l.Name = d.Name
	l.Creator = d.Creator
	l.VerifierName = d.VerifierName
	l.VerificationVideo = d.VerificationVideo
	l.MinCompletionPercent = d.MinCompletionPercent
}

// History actions.
const (
	HistoryAdded    = "added"
	HistoryMoved    = "moved"
	HistoryRemoved  = "removed"
	HistoryRelisted = "relisted"
	HistoryEdited   = "edited"
)

// LevelHistory is a best-effort log of placement changes.
type LevelHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LevelID   uint      `gorm:"not null;index" json:"level_id"`
	LevelName string    `gorm:"size:255" json:"level_name"`
	Action    string    `gorm:"size:20;not null" json:"action"`
	FromList  ListType  `gorm:"size:20" json:"from_list,omitempty"`
	FromRank  int       `json:"from_rank,omitempty"`
	ToList    ListType  `gorm:"size:20" json:"to_list,omitempty"`
	ToRank    int       `json:"to_rank,omitempty"`
	Actor     string    `gorm:"size:255" json:"actor,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for LevelHistory model.
func (LevelHistory) TableName() string {
	return "level_history"
}
