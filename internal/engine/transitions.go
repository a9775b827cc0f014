package engine

import (
	"jobtrail/internal/domain"
)

// forwardOrder is the progression path. A transition is legal when the
// target sits strictly after the current status on this list, or when the
// target is one of the terminal exits and the current status is not.
var forwardOrder = []string{
	domain.StatusSaved,
	domain.StatusApplied,
	domain.StatusScreening,
	domain.StatusInterviewScheduled,
	domain.StatusInterviewCompleted,
	domain.StatusOfferReceived,
	domain.StatusAccepted,
}

var terminalStatuses = map[string]bool{
	domain.StatusAccepted:  true,
	domain.StatusRejected:  true,
	domain.StatusWithdrawn: true,
}

// activeStatuses are eligible for follow-up reminders.
var activeStatuses = []string{
	domain.StatusApplied,
	domain.StatusScreening,
	domain.StatusInterviewScheduled,
}

func forwardRank(status string) int {
	for i, s := range forwardOrder {
		if s == status {
			return i
		}
	}
	return -1
}

func validStatus(status string) bool {
	if terminalStatuses[status] {
		return true
	}
	return forwardRank(status) >= 0
}

func isTerminal(status string) bool {
	return terminalStatuses[status]
}

func isActive(status string) bool {
	for _, s := range activeStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// allowedNext lists the legal targets from a status, terminal exits last.
func allowedNext(status string) []string {
	if terminalStatuses[status] {
		return nil
	}
	var next []string
	rank := forwardRank(status)
	for i, s := range forwardOrder {
		if i > rank {
			next = append(next, s)
		}
	}
	next = append(next, domain.StatusRejected, domain.StatusWithdrawn)
	return next
}

// ensureTransition enforces the validity rule for a non-idempotent
// transition. Same-status calls are handled before this check.
func ensureTransition(current, next string) error {
	if terminalStatuses[current] {
		return InvalidTransitionError{From: current, To: next}
	}
	if terminalStatuses[next] && next != domain.StatusAccepted {
		return nil
	}
	if forwardRank(next) > forwardRank(current) {
		return nil
	}
	return InvalidTransitionError{From: current, To: next, Allowed: allowedNext(current)}
}

// Side effects applied atomically with the status write. The table keeps
// transition behavior data-driven instead of a branch per status.

type effectKind int

const (
	effectSetFollowUp effectKind = iota
	effectClearFollowUp
	effectEmitEvent
)

type sideEffect struct {
	kind      effectKind
	eventType string
}

var transitionEffects = map[string][]sideEffect{
	domain.StatusApplied: {
		{kind: effectSetFollowUp},
	},
	domain.StatusInterviewScheduled: {
		{kind: effectEmitEvent, eventType: domain.EventInterviewPrep},
	},
	domain.StatusRejected: {
		{kind: effectEmitEvent, eventType: domain.EventRejectionTag},
		{kind: effectClearFollowUp},
	},
	domain.StatusOfferReceived: {
		{kind: effectEmitEvent, eventType: domain.EventOfferReceived},
	},
	domain.StatusAccepted: {
		{kind: effectClearFollowUp},
	},
	domain.StatusWithdrawn: {
		{kind: effectClearFollowUp},
	},
}
