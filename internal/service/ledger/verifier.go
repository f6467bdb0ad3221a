package ledger

import (
	"context"
	"strings"

	"github.com/aimd54/levellist/internal/models"
)

// VerifierApprover is recorded as the approver of synthesized verifier awards.
const VerifierApprover = "verifier-auto-award"

// MatchesVerifier reports whether the user is the level's verifier. The match
// is a plain case-insensitive comparison of the names.
func MatchesVerifier(level *models.Level, user *models.User) bool {
	if level.VerifierName == "" {
		return false
	}
	return strings.EqualFold(level.VerifierName, user.Username)
}

// awardVerifier creates the one-time 100% award for the level's verifier.
// It returns nil when the user is not the verifier, already holds the award,
// or already has an approved completion of the level.
func (s *Service) awardVerifier(ctx context.Context, level *models.Level, user *models.User) (*models.Record, error) {
	if !MatchesVerifier(level, user) {
		return nil, nil
	}

	awarded, err := s.records.HasVerifierAward(ctx, user.ID, level.ID)
	if err != nil || awarded {
		return nil, err
	}
	completed, err := s.records.HasCompletion(ctx, user.ID, level.ID)
	if err != nil || completed {
		return nil, err
	}

	now := s.now()
	award := &models.Record{
		UserID:          user.ID,
		LevelID:         level.ID,
		Progress:        100,
		VideoRef:        level.VerificationVideo,
		Status:          models.RecordApproved,
		IsVerifierAward: true,
		ApprovedBy:      VerifierApprover,
		ApprovedAt:      &now,
	}
	if err := s.records.Create(ctx, award); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("record_id", award.ID).
		Uint("user_id", user.ID).
		Uint("level_id", level.ID).
		Msg("Verifier award created")

	return award, nil
}
