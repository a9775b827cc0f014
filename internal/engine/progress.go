package engine

import (
	"context"

	"jobtrail/internal/domain"
)

// statusWeights is the fixed, non-linear progress table. The jumps track
// how hard each stage is to reach, not equal spacing.
var statusWeights = map[string]int{
	domain.StatusSaved:              10,
	domain.StatusApplied:            25,
	domain.StatusScreening:          40,
	domain.StatusInterviewScheduled: 55,
	domain.StatusInterviewCompleted: 70,
	domain.StatusOfferReceived:      90,
	domain.StatusAccepted:           100,
}

// ComputeProgress derives the visualization value from the current
// application state plus the status_changed history. Pure read,
// deterministic for a given event log.
func (e Engine) ComputeProgress(ctx context.Context, applicationID, actorID string) (domain.Progress, error) {
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return domain.Progress{}, err
	}
	changes, err := e.Timeline.StatusChanges(ctx, a.ID)
	if err != nil {
		return domain.Progress{}, err
	}

	stages := make(map[string]*string, len(statusWeights)+2)
	for s := range statusWeights {
		stages[s] = nil
	}
	stages[domain.StatusRejected] = nil
	stages[domain.StatusWithdrawn] = nil
	for _, c := range changes {
		if existing, ok := stages[c.To]; ok && existing == nil {
			ts := c.CreatedAt
			stages[c.To] = &ts
		}
	}

	p := domain.Progress{
		ApplicationID:   a.ID,
		CurrentStatus:   a.Status,
		StageTimestamps: stages,
	}
	if !isTerminal(a.Status) {
		p.CurrentWeight = statusWeights[a.Status]
		return p, nil
	}

	// Terminal: show how far the application got, not zero and not the
	// terminal stage weight.
	p.IsTerminal = true
	p.TerminalReason = a.Status
	last := lastNonTerminal(changes)
	w := statusWeights[last]
	p.CurrentWeight = w
	p.TerminatedAtWeight = &w
	return p, nil
}

// lastNonTerminal walks the status history backwards for the last
// non-terminal status held before termination. An application terminated
// straight from saved never produced a non-terminal "to", so fall back to
// the saved weight via the transition's "from" side.
func lastNonTerminal(changes []domain.StatusChange) string {
	for i := len(changes) - 1; i >= 0; i-- {
		if !isTerminal(changes[i].To) {
			return changes[i].To
		}
	}
	for i := len(changes) - 1; i >= 0; i-- {
		if !isTerminal(changes[i].From) {
			return changes[i].From
		}
	}
	return domain.StatusSaved
}
