package engine_test

import (
	"testing"
	"time"

	"jobtrail/internal/domain"
)

func TestProgressWeightsAdvance(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "job-1")

	steps := []struct {
		status string
		weight int
	}{
		{domain.StatusSaved, 10},
		{domain.StatusApplied, 25},
		{domain.StatusScreening, 40},
		{domain.StatusInterviewScheduled, 55},
		{domain.StatusInterviewCompleted, 70},
		{domain.StatusOfferReceived, 90},
		{domain.StatusAccepted, 100},
	}
	for _, step := range steps {
		if step.status != domain.StatusSaved {
			env.transition(t, a.ID, step.status)
		}
		p, err := env.Engine.ComputeProgress(env.Ctx, a.ID, "user-1")
		if err != nil {
			t.Fatalf("progress at %s: %v", step.status, err)
		}
		if p.CurrentWeight != step.weight {
			t.Fatalf("at %s expected weight %d, got %d", step.status, step.weight, p.CurrentWeight)
		}
	}
}

func TestProgressTerminalKeepsLastWeight(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "job-1")
	env.transition(t, a.ID, domain.StatusApplied)
	env.transition(t, a.ID, domain.StatusInterviewScheduled)
	env.transition(t, a.ID, domain.StatusWithdrawn)

	p, err := env.Engine.ComputeProgress(env.Ctx, a.ID, "user-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !p.IsTerminal || p.TerminalReason != domain.StatusWithdrawn {
		t.Fatalf("expected terminal withdrawn, got %+v", p)
	}
	if p.CurrentWeight != 55 {
		t.Fatalf("expected frozen weight 55, got %d", p.CurrentWeight)
	}
	if p.TerminatedAtWeight == nil || *p.TerminatedAtWeight != 55 {
		t.Fatalf("expected terminated_at_weight 55")
	}
}

func TestProgressTerminalFromSaved(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "job-1")
	env.transition(t, a.ID, domain.StatusRejected)

	p, err := env.Engine.ComputeProgress(env.Ctx, a.ID, "user-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.CurrentWeight != 10 {
		t.Fatalf("rejection from saved should keep the saved weight, got %d", p.CurrentWeight)
	}
}

func TestProgressStageTimestamps(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "job-1")
	env.transition(t, a.ID, domain.StatusApplied)
	appliedAt := env.now().UTC().Format(time.RFC3339)
	env.advance(48 * time.Hour)
	env.transition(t, a.ID, domain.StatusScreening)

	p, err := env.Engine.ComputeProgress(env.Ctx, a.ID, "user-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if got := p.StageTimestamps[domain.StatusApplied]; got == nil || *got != appliedAt {
		t.Fatalf("expected applied stamp %s, got %v", appliedAt, got)
	}
	if p.StageTimestamps[domain.StatusScreening] == nil {
		t.Fatalf("expected screening stamp")
	}
	if p.StageTimestamps[domain.StatusInterviewScheduled] != nil {
		t.Fatalf("unreached stage must stay nil")
	}
}
