// Package ledger implements the record approval workflow.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/apperror"
	"github.com/aimd54/levellist/pkg/validator"
)

// RecordRepository is the record access the ledger needs.
type RecordRepository interface {
	Create(ctx context.Context, record *models.Record) error
	GetByID(ctx context.Context, id uint) (*models.Record, error)
	Update(ctx context.Context, record *models.Record) error
	Delete(ctx context.Context, id uint) error
	HasVerifierAward(ctx context.Context, userID, levelID uint) (bool, error)
	HasCompletion(ctx context.Context, userID, levelID uint) (bool, error)
}

// LevelRepository is the level access the ledger needs.
type LevelRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Level, error)
}

// UserRepository is the user access the ledger needs.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// PointsAggregator recomputes a user's total.
type PointsAggregator interface {
	Recompute(ctx context.Context, userID uint) (float64, error)
}

// Submission is a user's claim of progress on a level.
type Submission struct {
	UserID   uint   `json:"user_id" validate:"required"`
	LevelID  uint   `json:"level_id" validate:"required"`
	Progress int    `json:"progress" validate:"min=1,max=100"`
	VideoRef string `json:"video_ref" validate:"omitempty,url,max=2048"`
}

// Outcome reports what an approval workflow step did.
type Outcome struct {
	Record *models.Record
	Level  *models.Level
	User   *models.User

	// NoOp is set when the record was already approved.
	NoOp bool
	// VerifierAward is the synthesized record, when one was created.
	VerifierAward *models.Record
	// Points is the owner's total after the step, when it was recomputed.
	Points     float64
	Recomputed bool
}

// Service runs the record lifecycle: Pending, then Approved or Rejected.
type Service struct {
	records    RecordRepository
	levels     LevelRepository
	users      UserRepository
	aggregator PointsAggregator
	log        *zerolog.Logger
	now        func() time.Time
}

// NewService creates a new ledger service.
func NewService(records RecordRepository, levels LevelRepository, users UserRepository, aggregator PointsAggregator, log *zerolog.Logger) *Service {
	return &Service{
		records:    records,
		levels:     levels,
		users:      users,
		aggregator: aggregator,
		log:        log,
		now:        time.Now,
	}
}

// Submit creates a pending record.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	if err := validator.Struct(sub); err != nil {
		return nil, err
	}

	level, err := s.levels.GetByID(ctx, sub.LevelID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}

	if sub.Progress < level.MinCompletionPercent {
		return nil, fmt.Errorf("%w: progress %d is below the %d%% required by %q",
			apperror.ErrBelowThreshold, sub.Progress, level.MinCompletionPercent, level.Name)
	}

	record := &models.Record{
		UserID:   user.ID,
		LevelID:  level.ID,
		Progress: sub.Progress,
		VideoRef: sub.VideoRef,
		Status:   models.RecordPending,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("record_id", record.ID).
		Uint("user_id", user.ID).
		Uint("level_id", level.ID).
		Int("progress", record.Progress).
		Msg("Record submitted")

	return &Outcome{Record: record, Level: level, User: user}, nil
}

// Approve marks a pending record approved, recomputes its owner and runs the
// verifier auto-award. Approving an approved record is a no-op.
func (s *Service) Approve(ctx context.Context, id uint, approver string) (*Outcome, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case models.RecordApproved:
		return &Outcome{Record: record, NoOp: true}, nil
	case models.RecordRejected:
		return nil, fmt.Errorf("%w: record %d was rejected", apperror.ErrAlreadyProcessed, record.ID)
	}

	level, err := s.levels.GetByID(ctx, record.LevelID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record.Status = models.RecordApproved
	record.ApprovedBy = approver
	record.ApprovedAt = &now
	if err := s.records.Update(ctx, record); err != nil {
		return nil, err
	}

	total, err := s.aggregator.Recompute(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Record: record, Level: level, User: user, Points: total, Recomputed: true}

	award, err := s.awardVerifier(ctx, level, user)
	if err != nil {
		return nil, err
	}
	if award != nil {
		outcome.VerifierAward = award
		if outcome.Points, err = s.aggregator.Recompute(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	s.log.Info().
		Uint("record_id", record.ID).
		Uint("user_id", user.ID).
		Str("approver", approver).
		Float64("points", outcome.Points).
		Bool("verifier_award", award != nil).
		Msg("Record approved")

	return outcome, nil
}

// Reject marks a pending record rejected. Points are unaffected.
func (s *Service) Reject(ctx context.Context, id uint, reason, rejecter string) (*Outcome, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.IsTerminal() {
		return nil, fmt.Errorf("%w: record %d is already %s", apperror.ErrAlreadyProcessed, record.ID, record.Status)
	}

	now := s.now()
	record.Status = models.RecordRejected
	record.RejectedBy = rejecter
	record.RejectedReason = reason
	record.RejectedAt = &now
	if err := s.records.Update(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("record_id", record.ID).
		Str("rejecter", rejecter).
		Str("reason", reason).
		Msg("Record rejected")

	return &Outcome{Record: record}, nil
}

// Delete removes a record and, when it was approved, recomputes its owner.
func (s *Service) Delete(ctx context.Context, id uint) (*Outcome, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.records.Delete(ctx, record.ID); err != nil {
		return nil, err
	}

	outcome := &Outcome{Record: record}
	if record.Status == models.RecordApproved {
		if outcome.Points, err = s.aggregator.Recompute(ctx, record.UserID); err != nil {
			return nil, err
		}
		outcome.Recomputed = true
	}

	s.log.Info().
		Uint("record_id", record.ID).
		Uint("user_id", record.UserID).
		Bool("recomputed", outcome.Recomputed).
		Msg("Record deleted")

	return outcome, nil
}
