package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/repository"
	"github.com/aimd54/levellist/internal/service/aggregator"
	"github.com/aimd54/levellist/internal/service/points"
	"github.com/aimd54/levellist/pkg/apperror"
)

type fixture struct {
	store   *repository.Store
	service *Service
	level   *models.Level
	user    *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := &repository.DB{DB: gormDB}
	require.NoError(t, db.AutoMigrate())
	store := repository.NewStore(db)

	log := zerolog.Nop()
	agg := aggregator.NewService(store.Records, store.Levels, store.Users, points.Default(), &log)
	svc := NewService(store.Records, store.Levels, store.Users, agg, &log)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	level := &models.Level{
		Name:                 "Sonic Wave",
		List:                 models.ListMain,
		Rank:                 1,
		Points:               100,
		MinCompletionPercent: 90,
		VerifierName:         "Cyclic",
	}
	require.NoError(t, store.Levels.Create(ctx, level))

	user, err := store.Users.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	return &fixture{store: store, service: svc, level: level, user: user}
}

func (f *fixture) submit(t *testing.T, userID uint, progress int) *models.Record {
	t.Helper()
	out, err := f.service.Submit(context.Background(), Submission{UserID: userID, LevelID: f.level.ID, Progress: progress})
	require.NoError(t, err)
	return out.Record
}

func (f *fixture) userPoints(t *testing.T, userID uint) float64 {
	t.Helper()
	u, err := f.store.Users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return u.Points
}

func TestSubmit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.service.Submit(ctx, Submission{UserID: f.user.ID, LevelID: f.level.ID, Progress: 95, VideoRef: "https://youtu.be/abc"})
	require.NoError(t, err)
	assert.Equal(t, models.RecordPending, out.Record.Status)
	assert.Equal(t, "Sonic Wave", out.Level.Name)
	assert.Equal(t, "alice", out.User.Username)

	_, err = f.service.Submit(ctx, Submission{UserID: f.user.ID, LevelID: f.level.ID, Progress: 50})
	assert.ErrorIs(t, err, apperror.ErrBelowThreshold)

	_, err = f.service.Submit(ctx, Submission{UserID: f.user.ID, LevelID: 999, Progress: 100})
	assert.ErrorIs(t, err, apperror.ErrLevelNotFound)

	_, err = f.service.Submit(ctx, Submission{UserID: 999, LevelID: f.level.ID, Progress: 100})
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)

	_, err = f.service.Submit(ctx, Submission{UserID: f.user.ID, LevelID: f.level.ID, Progress: 101})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.service.Submit(ctx, Submission{UserID: f.user.ID, LevelID: f.level.ID, Progress: 95, VideoRef: "not a link"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestApprove_PartialAndFullAwards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	partial := f.submit(t, f.user.ID, 95)
	out, err := f.service.Approve(ctx, partial.ID, "mod")
	require.NoError(t, err)
	assert.Equal(t, 10.0, out.Points)
	assert.Equal(t, "mod", out.Record.ApprovedBy)
	require.NotNil(t, out.Record.ApprovedAt)

	full := f.submit(t, f.user.ID, 100)
	out, err = f.service.Approve(ctx, full.ID, "mod")
	require.NoError(t, err)
	assert.Equal(t, 110.0, out.Points)
	assert.Equal(t, 110.0, f.userPoints(t, f.user.ID))
}

func TestApprove_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	record := f.submit(t, f.user.ID, 100)

	first, err := f.service.Approve(ctx, record.ID, "mod")
	require.NoError(t, err)
	assert.False(t, first.NoOp)

	second, err := f.service.Approve(ctx, record.ID, "other-mod")
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.Equal(t, "mod", second.Record.ApprovedBy)

	assert.Equal(t, 100.0, f.userPoints(t, f.user.ID))
}

func TestApprove_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.service.Approve(ctx, 999, "mod")
	assert.ErrorIs(t, err, apperror.ErrRecordNotFound)

	record := f.submit(t, f.user.ID, 100)
	_, err = f.service.Reject(ctx, record.ID, "spliced", "mod")
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, record.ID, "mod")
	assert.ErrorIs(t, err, apperror.ErrAlreadyProcessed)
	assert.Equal(t, 0.0, f.userPoints(t, f.user.ID))
}

func TestReject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	record := f.submit(t, f.user.ID, 100)
	out, err := f.service.Reject(ctx, record.ID, "no raw footage", "mod")
	require.NoError(t, err)
	assert.Equal(t, models.RecordRejected, out.Record.Status)
	assert.Equal(t, "no raw footage", out.Record.RejectedReason)

	_, err = f.service.Reject(ctx, record.ID, "again", "mod")
	assert.ErrorIs(t, err, apperror.ErrAlreadyProcessed)

	approved := f.submit(t, f.user.ID, 100)
	_, err = f.service.Approve(ctx, approved.ID, "mod")
	require.NoError(t, err)
	_, err = f.service.Reject(ctx, approved.ID, "changed my mind", "mod")
	assert.ErrorIs(t, err, apperror.ErrAlreadyProcessed)

	_, err = f.service.Reject(ctx, 999, "", "mod")
	assert.ErrorIs(t, err, apperror.ErrRecordNotFound)
}

func TestDelete_ApprovedRecordLowersPoints(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	partial := f.submit(t, f.user.ID, 95)
	full := f.submit(t, f.user.ID, 100)
	for _, r := range []*models.Record{partial, full} {
		_, err := f.service.Approve(ctx, r.ID, "mod")
		require.NoError(t, err)
	}
	require.Equal(t, 110.0, f.userPoints(t, f.user.ID))

	out, err := f.service.Delete(ctx, full.ID)
	require.NoError(t, err)
	assert.True(t, out.Recomputed)
	assert.Equal(t, 10.0, out.Points)
	assert.Equal(t, 10.0, f.userPoints(t, f.user.ID))

	pending := f.submit(t, f.user.ID, 100)
	out, err = f.service.Delete(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, out.Recomputed)

	_, err = f.service.Delete(ctx, pending.ID)
	assert.ErrorIs(t, err, apperror.ErrRecordNotFound)
}

func TestVerifierAward_CreatedOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	verifier, err := f.store.Users.GetOrCreate(ctx, "cyclic")
	require.NoError(t, err)

	first := f.submit(t, verifier.ID, 95)
	out, err := f.service.Approve(ctx, first.ID, "mod")
	require.NoError(t, err)
	require.NotNil(t, out.VerifierAward)
	assert.True(t, out.VerifierAward.IsVerifierAward)
	assert.Equal(t, 100, out.VerifierAward.Progress)
	assert.Equal(t, VerifierApprover, out.VerifierAward.ApprovedBy)
	// 10% partial plus the 100% award
	assert.Equal(t, 110.0, out.Points)

	second := f.submit(t, verifier.ID, 92)
	out, err = f.service.Approve(ctx, second.ID, "mod")
	require.NoError(t, err)
	assert.Nil(t, out.VerifierAward)

	var awards int64
	require.NoError(t, f.store.DB().Model(&models.Record{}).
		Where("user_id = ? AND is_verifier_award = ?", verifier.ID, true).
		Count(&awards).Error)
	assert.Equal(t, int64(1), awards)
}

func TestVerifierAward_SkippedWhenAlreadyCompleted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	verifier, err := f.store.Users.GetOrCreate(ctx, "CYCLIC")
	require.NoError(t, err)

	record := f.submit(t, verifier.ID, 100)
	out, err := f.service.Approve(ctx, record.ID, "mod")
	require.NoError(t, err)
	assert.Nil(t, out.VerifierAward)
	assert.Equal(t, 100.0, out.Points)
}

func TestMatchesVerifier(t *testing.T) {
	level := &models.Level{VerifierName: "Cyclic"}

	assert.True(t, MatchesVerifier(level, &models.User{Username: "cyclic"}))
	assert.True(t, MatchesVerifier(level, &models.User{Username: "CYCLIC"}))
	assert.False(t, MatchesVerifier(level, &models.User{Username: "Cyclic "}))
	assert.False(t, MatchesVerifier(level, &models.User{Username: "Cycl1c"}))
	assert.False(t, MatchesVerifier(&models.Level{}, &models.User{Username: ""}))
}
