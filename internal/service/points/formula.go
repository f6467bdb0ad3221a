// Package points derives level and record points from list rank.
package points

import (
	"fmt"
	"math"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/apperror"
)

// Default formula parameters.
const (
	DefaultBase      = 250.0
	DefaultDecay     = 0.9475
	DefaultPrecision = 2

	// PartialAwardRatio is the share of a level's points credited for a
	// record at or above the level's minimum completion.
	PartialAwardRatio = 0.10
)

// Formula computes points(rank) = round(Base * Decay^(rank-1), Precision).
type Formula struct {
	Base      float64
	Decay     float64
	Precision int
}

// Default returns the formula with the production constants.
func Default() Formula {
	return Formula{Base: DefaultBase, Decay: DefaultDecay, Precision: DefaultPrecision}
}

// Validate checks the formula parameters.
func (f Formula) Validate() error {
	if f.Base <= 0 {
		return fmt.Errorf("points base must be positive, got %v", f.Base)
	}
	if f.Decay <= 0 || f.Decay > 1 {
		return fmt.Errorf("points decay must be in (0, 1], got %v", f.Decay)
	}
	if f.Precision < 0 || f.Precision > 6 {
		return fmt.Errorf("points precision must be between 0 and 6, got %d", f.Precision)
	}
	return nil
}

// ForRank returns the points of the given rank on the main list.
func (f Formula) ForRank(rank int) (float64, error) {
	if rank < 1 {
		return 0, fmt.Errorf("rank %d: %w", rank, apperror.ErrInvalidRank)
	}
	return f.Round(f.Base * math.Pow(f.Decay, float64(rank-1))), nil
}

// ForLevel returns the points a level at (list, rank) is worth. Legacy is always 0.
func (f Formula) ForLevel(list models.ListType, rank int) (float64, error) {
	if rank < 1 {
		return 0, fmt.Errorf("rank %d: %w", rank, apperror.ErrInvalidRank)
	}
	if list == models.ListLegacy {
		return 0, nil
	}
	return f.ForRank(rank)
}

// Awarded returns the points one record credits to its owner against the
// level's current points.
func (f Formula) Awarded(record *models.Record, level *models.Level) float64 {
	if record == nil || level == nil {
		return 0
	}
	if level.List == models.ListLegacy || record.Status != models.RecordApproved {
		return 0
	}
	if record.Progress == 100 {
		return level.Points
	}
	if level.MinCompletionPercent < 100 && record.Progress >= level.MinCompletionPercent {
		return f.Round(PartialAwardRatio * level.Points)
	}
	return 0
}

// Round rounds v to the formula precision.
func (f Formula) Round(v float64) float64 {
	scale := math.Pow(10, float64(f.Precision))
	return math.Round(v*scale) / scale
}
