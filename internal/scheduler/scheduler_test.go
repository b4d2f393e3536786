package scheduler

import (
	"testing"

	"go.uber.org/zap"
)

type countingTask struct {
	expired     int
	deactivated int
}

func (t *countingTask) ExpireRedemptions()      { t.expired++ }
func (t *countingTask) DeactivateExpiredCodes() { t.deactivated++ }

func TestNewScheduler_RegistersConfiguredJobs(t *testing.T) {
	t.Parallel()

	task := &countingTask{}
	c := NewScheduler(Deps{RedemptionJob: task, ReferralCodeJob: task}, nil)
	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 scheduled jobs, got %d", len(entries))
	}

	for _, entry := range entries {
		entry.Job.Run()
	}
	if task.expired != 1 || task.deactivated != 1 {
		t.Fatalf("expected each job to run once, got expired=%d deactivated=%d", task.expired, task.deactivated)
	}
}

func TestNewScheduler_SkipsMissingJobs(t *testing.T) {
	t.Parallel()

	c := NewScheduler(Deps{}, zap.NewNop())
	if got := len(c.Entries()); got != 0 {
		t.Fatalf("expected no jobs, got %d", got)
	}
}

type panickingTask struct{}

func (panickingTask) ExpireRedemptions() { panic("boom") }

func TestAddFunc_RecoversPanics(t *testing.T) {
	t.Parallel()

	c := NewScheduler(Deps{RedemptionJob: panickingTask{}}, zap.NewNop())
	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 job, got %d", len(entries))
	}
	entries[0].Job.Run()
}
