package server

import (
	"encoding/base64"
	"strings"

	"jobtrail/internal/domain"
)

type CreateApplicationRequest struct {
	JobID  string  `json:"job_id" example:"job-42"`
	UserID *string `json:"user_id,omitempty" required:"false" doc:"Defaults to the authenticated actor"`
}

type TransitionRequest struct {
	Status string `json:"status" example:"applied"`
}

type CreateNoteRequest struct {
	Type    string `json:"type" example:"general"`
	Content string `json:"content"`
}

type UpdateNoteRequest struct {
	Type    *string `json:"type,omitempty" required:"false"`
	Content *string `json:"content,omitempty" required:"false"`
}

type ApplicationResponse = domain.Application
type NoteResponse = domain.Note
type TimelineEventResponse = domain.TimelineEvent
type ProgressResponse = domain.Progress
type StatisticsResponse = domain.Statistics

type paginatedApplications struct {
	Items      []ApplicationResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func applicationResponse(a domain.Application) ApplicationResponse { return a }

func mapApplications(items []domain.Application) []ApplicationResponse {
	if items == nil {
		return []ApplicationResponse{}
	}
	return items
}

func noteResponse(n domain.Note) NoteResponse { return n }

func mapNotes(items []domain.Note) []NoteResponse {
	if items == nil {
		return []NoteResponse{}
	}
	return items
}

func mapTimeline(items []domain.TimelineEvent) []TimelineEventResponse {
	if items == nil {
		return []TimelineEventResponse{}
	}
	return items
}

func progressResponse(p domain.Progress) ProgressResponse { return p }

func statisticsResponse(s domain.Statistics) StatisticsResponse { return s }

// Cursors are opaque to clients: base64("createdAt|id"), keyset over the
// (created_at DESC, id DESC) list order.
func encodeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func decodeCursor(cursor string) (createdAt, id string, ok bool) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
