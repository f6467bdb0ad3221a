package engine

import (
	"context"

	"github.com/aimd54/levellist/internal/metrics"
	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/notify"
	"github.com/aimd54/levellist/internal/service/ledger"
)

// SubmitRecord creates a pending record and returns its ID.
func (e *Engine) SubmitRecord(ctx context.Context, userID, levelID uint, progress int, videoRef string) (id uint, err error) {
	defer func() { metrics.RecordRecordAction("submit", err) }()

	unlock := e.lockLists(false, models.Lists...)
	outcome, err := e.bind(e.store).ledger.Submit(ctx, ledger.Submission{
		UserID:   userID,
		LevelID:  levelID,
		Progress: progress,
		VideoRef: videoRef,
	})
	unlock()
	if err != nil {
		return 0, err
	}

	e.notify(ctx, notify.RecordSubmitted, map[string]interface{}{
		"record_id": outcome.Record.ID,
		"user":      outcome.User.Username,
		"level":     outcome.Level.Name,
		"progress":  outcome.Record.Progress,
		"video_ref": outcome.Record.VideoRef,
	})
	return outcome.Record.ID, nil
}

// withRecordOwner runs fn in a transaction while holding the list read locks
// and the lock of the record owner.
func (e *Engine) withRecordOwner(ctx context.Context, recordID uint, fn func(s *services) (*ledger.Outcome, error)) (*ledger.Outcome, error) {
	record, err := e.store.Records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	unlock := e.lockLists(false, models.Lists...)
	defer unlock()

	mu := e.userLock(record.UserID)
	mu.Lock()
	defer mu.Unlock()

	var outcome *ledger.Outcome
	err = e.inTx(ctx, func(s *services) error {
		var err error
		outcome, err = fn(s)
		return err
	})
	return outcome, err
}

// ApproveRecord approves a pending record. Approving an approved record is a no-op.
func (e *Engine) ApproveRecord(ctx context.Context, id uint, approver string) (err error) {
	defer func() { metrics.RecordRecordAction("approve", err) }()

	outcome, err := e.withRecordOwner(ctx, id, func(s *services) (*ledger.Outcome, error) {
		return s.ledger.Approve(ctx, id, approver)
	})
	if err != nil {
		return err
	}
	if outcome.NoOp {
		e.log.Debug().Uint("record_id", id).Msg("Record already approved")
		return nil
	}

	metrics.RecordUserRecomputes("record", 1)
	e.notify(ctx, notify.RecordApproved, map[string]interface{}{
		"record_id": outcome.Record.ID,
		"user":      outcome.User.Username,
		"level":     outcome.Level.Name,
		"progress":  outcome.Record.Progress,
		"approver":  approver,
		"points":    outcome.Points,
	})

	if outcome.VerifierAward != nil {
		metrics.RecordVerifierAward()
		e.notify(ctx, notify.VerifierAwarded, map[string]interface{}{
			"record_id": outcome.VerifierAward.ID,
			"user":      outcome.User.Username,
			"level":     outcome.Level.Name,
		})
	}
	return nil
}

// RejectRecord rejects a pending record.
func (e *Engine) RejectRecord(ctx context.Context, id uint, reason, rejecter string) (err error) {
	defer func() { metrics.RecordRecordAction("reject", err) }()

	outcome, err := e.withRecordOwner(ctx, id, func(s *services) (*ledger.Outcome, error) {
		return s.ledger.Reject(ctx, id, reason, rejecter)
	})
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"record_id": outcome.Record.ID,
		"reason":    reason,
		"rejecter":  rejecter,
	}
	if user, err := e.store.Users.GetByID(ctx, outcome.Record.UserID); err == nil {
		payload["user"] = user.Username
	}
	if level, err := e.store.Levels.GetByID(ctx, outcome.Record.LevelID); err == nil {
		payload["level"] = level.Name
	}
	e.notify(ctx, notify.RecordRejected, payload)
	return nil
}

// DeleteRecord removes a record, re-aggregating its owner when it was approved.
func (e *Engine) DeleteRecord(ctx context.Context, id uint) (err error) {
	defer func() { metrics.RecordRecordAction("delete", err) }()

	outcome, err := e.withRecordOwner(ctx, id, func(s *services) (*ledger.Outcome, error) {
		return s.ledger.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if outcome.Recomputed {
		metrics.RecordUserRecomputes("record", 1)
	}
	return nil
}

// PendingRecords returns the oldest pending records.
func (e *Engine) PendingRecords(ctx context.Context, limit int) ([]models.Record, error) {
	return e.store.Records.ListPending(ctx, limit)
}

// GetRecord returns one record.
func (e *Engine) GetRecord(ctx context.Context, id uint) (*models.Record, error) {
	return e.store.Records.GetByID(ctx, id)
}

// UserRecords returns every record of a user, newest first.
func (e *Engine) UserRecords(ctx context.Context, userID uint) ([]models.Record, error) {
	if _, err := e.store.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return e.store.Records.ListByUser(ctx, userID)
}
