package domain

// Application statuses. Stored lowercase; forward progression order is
// defined in the engine's transition table.
const (
	StatusSaved              = "saved"
	StatusApplied            = "applied"
	StatusScreening          = "screening"
	StatusInterviewScheduled = "interview_scheduled"
	StatusInterviewCompleted = "interview_completed"
	StatusOfferReceived      = "offer_received"
	StatusAccepted           = "accepted"
	StatusRejected           = "rejected"
	StatusWithdrawn          = "withdrawn"
)

// Note types.
const (
	NoteGeneral   = "general"
	NoteInterview = "interview"
	NoteFeedback  = "feedback"
	NoteFollowUp  = "follow-up"
)

// Timeline event types.
const (
	EventCreated         = "created"
	EventStatusChanged   = "status_changed"
	EventStatusConfirmed = "status_confirmed"
	EventNoteAdded       = "note_added"
	EventNoteUpdated     = "note_updated"
	EventNoteDeleted     = "note_deleted"
	EventReminderSent    = "reminder_sent"
	EventInterviewPrep   = "interview_prep_ready"
	EventRejectionTag    = "rejection_recorded"
	EventOfferReceived   = "offer_celebrated"
)

type Application struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"user_id"`
	JobID              string  `json:"job_id"`
	Status             string  `json:"status" enum:"saved,applied,screening,interview_scheduled,interview_completed,offer_received,accepted,rejected,withdrawn"`
	AppliedAt          string  `json:"applied_at" format:"date-time"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	LastUpdatedAt      string  `json:"last_updated_at" format:"date-time"`
	FollowUpDate       *string `json:"follow_up_date,omitempty" format:"date-time"`
	LastReminderSentAt *string `json:"last_reminder_sent_at,omitempty" format:"date-time"`
}

type Note struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id"`
	Type          string `json:"type" enum:"general,interview,feedback,follow-up"`
	Content       string `json:"content"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

// TimelineEvent is an immutable audit record. Rows are never updated or
// deleted; the autoincrement ID gives a total order within an application.
type TimelineEvent struct {
	ID            int64  `json:"id"`
	ApplicationID string `json:"application_id"`
	EventType     string `json:"event_type"`
	ActorID       string `json:"actor_id"`
	Metadata      string `json:"metadata_json"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// StatusChange is the derived view of a status_changed timeline event.
type StatusChange struct {
	From      string `json:"from"`
	To        string `json:"to"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Progress is the visualization value for one application. Terminal
// applications keep the weight of the last non-terminal status reached.
type Progress struct {
	ApplicationID      string             `json:"application_id"`
	CurrentStatus      string             `json:"current_status"`
	CurrentWeight      int                `json:"current_weight"`
	StageTimestamps    map[string]*string `json:"stage_timestamps"`
	IsTerminal         bool               `json:"is_terminal"`
	TerminalReason     string             `json:"terminal_reason,omitempty"`
	TerminatedAtWeight *int               `json:"terminated_at_weight,omitempty"`
}

// Reminder is the payload handed to the notification sink.
type Reminder struct {
	ApplicationID    string `json:"application_id"`
	UserID           string `json:"user_id"`
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	DaysSinceApplied int    `json:"days_since_applied"`
}

// Statistics aggregates one user's search. Rates are history-based: an
// application that moved screening -> rejected still counts as a response.
type Statistics struct {
	Total                   int            `json:"total"`
	ByStatus                map[string]int `json:"by_status"`
	ResponseRate            *float64       `json:"response_rate,omitempty"`
	InterviewConversionRate *float64       `json:"interview_conversion_rate,omitempty"`
	OfferRate               *float64       `json:"offer_rate,omitempty"`
	AvgResponseTimeDays     *float64       `json:"avg_response_time_days,omitempty"`
	RecentActivity          int            `json:"recent_activity"`
}
