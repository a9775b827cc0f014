package engine

import (
	"fmt"
	"strings"
)

// InvalidTransitionError reports a state-machine rule violation together
// with the transitions that would have been legal, so callers can surface
// them.
type InvalidTransitionError struct {
	From    string
	To      string
	Allowed []string
}

func (e InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid transition %s -> %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition %s -> %s (allowed: %s)", e.From, e.To, strings.Join(e.Allowed, ", "))
}

// ValidationError reports malformed input: unknown status or note type,
// empty note content, an application that is not reminder-eligible.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
