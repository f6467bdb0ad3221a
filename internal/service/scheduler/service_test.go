package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimd54/levellist/internal/config"
	prommetrics "github.com/aimd54/levellist/internal/metrics"
	"github.com/aimd54/levellist/pkg/apperror"
	"github.com/aimd54/levellist/pkg/logger"
)

type mockReconciler struct {
	users      int
	recompute  error
	verify     error
	recomputes int
	verifies   int
}

func (m *mockReconciler) RecomputeAllUsers(ctx context.Context) (int, error) {
	m.recomputes++
	return m.users, m.recompute
}

func (m *mockReconciler) VerifyLists(ctx context.Context) error {
	m.verifies++
	return m.verify
}

func TestRunOnce_Success(t *testing.T) {
	rec := &mockReconciler{users: 12}
	s := NewService(&config.SchedulerConfig{}, rec, logger.Nop())

	before := testutil.ToFloat64(prommetrics.ReconcileRunsTotal.WithLabelValues("success"))

	result, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if result.Users != 12 {
		t.Errorf("RunOnce() users = %d, want 12", result.Users)
	}
	if rec.recomputes != 1 || rec.verifies != 1 {
		t.Errorf("expected one recompute and one verify, got %d and %d", rec.recomputes, rec.verifies)
	}

	after := testutil.ToFloat64(prommetrics.ReconcileRunsTotal.WithLabelValues("success"))
	if after != before+1 {
		t.Errorf("success runs = %v, want %v", after, before+1)
	}
}

func TestRunOnce_Errors(t *testing.T) {
	tests := []struct {
		name         string
		recompute    error
		verify       error
		wantVerifies int
		wantErr      error
	}{
		{
			name:         "recompute fails",
			recompute:    errors.New("connection reset"),
			wantVerifies: 0,
		},
		{
			name:         "lists inconsistent",
			verify:       fmt.Errorf("%w: main: level 3 at rank 4, expected 3", apperror.ErrListInconsistent),
			wantVerifies: 1,
			wantErr:      apperror.ErrListInconsistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockReconciler{recompute: tt.recompute, verify: tt.verify}
			s := NewService(&config.SchedulerConfig{}, rec, logger.Nop())

			before := testutil.ToFloat64(prommetrics.ReconcileRunsTotal.WithLabelValues("failed"))

			_, err := s.RunOnce(context.Background())
			if err == nil {
				t.Fatal("RunOnce() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("RunOnce() error = %v, want %v", err, tt.wantErr)
			}
			if rec.verifies != tt.wantVerifies {
				t.Errorf("verifies = %d, want %d", rec.verifies, tt.wantVerifies)
			}

			after := testutil.ToFloat64(prommetrics.ReconcileRunsTotal.WithLabelValues("failed"))
			if after != before+1 {
				t.Errorf("error runs = %v, want %v", after, before+1)
			}
		})
	}
}

func TestStart_Disabled(t *testing.T) {
	s := NewService(&config.SchedulerConfig{Enabled: false}, &mockReconciler{}, logger.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.cron != nil {
		t.Error("disabled scheduler should not create a cron instance")
	}
	s.Stop()
}

func TestStart_RegistersJob(t *testing.T) {
	s := NewService(&config.SchedulerConfig{
		Enabled:           true,
		ReconcileSchedule: "0 4 * * *",
		Timezone:          "Europe/Paris",
	}, &mockReconciler{}, logger.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 cron entry, got %d", len(entries))
	}
	if entries[0].Next.IsZero() {
		t.Error("expected next run to be scheduled")
	}
}

func TestStart_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SchedulerConfig
	}{
		{
			name: "invalid timezone",
			cfg:  config.SchedulerConfig{Enabled: true, ReconcileSchedule: "0 4 * * *", Timezone: "Mars/Olympus"},
		},
		{
			name: "invalid schedule",
			cfg:  config.SchedulerConfig{Enabled: true, ReconcileSchedule: "every night", Timezone: "UTC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			s := NewService(&cfg, &mockReconciler{}, logger.Nop())
			if err := s.Start(); err == nil {
				s.Stop()
				t.Error("Start() expected error")
			}
		})
	}
}
