package jobtrailsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal JobTrail HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Application represents the API application model.
type Application struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"user_id"`
	JobID              string  `json:"job_id"`
	Status             string  `json:"status"`
	AppliedAt          string  `json:"applied_at"`
	CreatedAt          string  `json:"created_at"`
	LastUpdatedAt      string  `json:"last_updated_at"`
	FollowUpDate       *string `json:"follow_up_date,omitempty"`
	LastReminderSentAt *string `json:"last_reminder_sent_at,omitempty"`
}

// Note represents a note attached to an application.
type Note struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id"`
	Type          string `json:"type"`
	Content       string `json:"content"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// TimelineEvent represents an audit log entry.
type TimelineEvent struct {
	ID            int64  `json:"id"`
	ApplicationID string `json:"application_id"`
	EventType     string `json:"event_type"`
	ActorID       string `json:"actor_id"`
	Metadata      string `json:"metadata_json"`
	CreatedAt     string `json:"created_at"`
}

// Progress represents the pipeline visualization payload.
type Progress struct {
	ApplicationID      string             `json:"application_id"`
	CurrentStatus      string             `json:"current_status"`
	CurrentWeight      int                `json:"current_weight"`
	StageTimestamps    map[string]*string `json:"stage_timestamps"`
	IsTerminal         bool               `json:"is_terminal"`
	TerminalReason     string             `json:"terminal_reason,omitempty"`
	TerminatedAtWeight *int               `json:"terminated_at_weight,omitempty"`
}

// Statistics represents the aggregate metrics payload.
type Statistics struct {
	Total                   int            `json:"total"`
	ByStatus                map[string]int `json:"by_status"`
	ResponseRate            *float64       `json:"response_rate,omitempty"`
	InterviewConversionRate *float64       `json:"interview_conversion_rate,omitempty"`
	OfferRate               *float64       `json:"offer_rate,omitempty"`
	AvgResponseTimeDays     *float64       `json:"avg_response_time_days,omitempty"`
	RecentActivity          int            `json:"recent_activity"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedApplications wraps list responses with cursors.
type PaginatedApplications struct {
	Items      []Application `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

// CreateApplication creates a tracked application.
func (c *Client) CreateApplication(ctx context.Context, jobID string) (Application, error) {
	body := map[string]any{"job_id": jobID}
	var resp Application
	err := c.do(ctx, http.MethodPost, "v0/applications", body, &resp)
	return resp, err
}

// Applications returns one page of the caller's applications.
func (c *Client) Applications(ctx context.Context, status string, limit int, cursor string) (PaginatedApplications, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/applications"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp PaginatedApplications
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Application fetches one application by id.
func (c *Client) Application(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodGet, c.appPath(id, ""), nil, &resp)
	return resp, err
}

// Transition changes an application's status.
func (c *Client) Transition(ctx context.Context, id, status string) (Application, error) {
	body := map[string]any{"status": status}
	var resp Application
	err := c.do(ctx, http.MethodPost, c.appPath(id, "transition"), body, &resp)
	return resp, err
}

// AddNote attaches a note to an application.
func (c *Client) AddNote(ctx context.Context, id, noteType, content string) (Note, error) {
	body := map[string]any{"type": noteType, "content": content}
	var resp Note
	err := c.do(ctx, http.MethodPost, c.appPath(id, "notes"), body, &resp)
	return resp, err
}

// Notes lists an application's notes.
func (c *Client) Notes(ctx context.Context, id string) ([]Note, error) {
	var resp []Note
	err := c.do(ctx, http.MethodGet, c.appPath(id, "notes"), nil, &resp)
	return resp, err
}

// UpdateNote edits a note's type and/or content. Nil fields are left as is.
func (c *Client) UpdateNote(ctx context.Context, id, noteID string, noteType, content *string) (Note, error) {
	body := map[string]any{}
	if noteType != nil {
		body["type"] = *noteType
	}
	if content != nil {
		body["content"] = *content
	}
	var resp Note
	endpoint := c.appPath(id, "notes/"+url.PathEscape(noteID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, id, noteID string) error {
	endpoint := c.appPath(id, "notes/"+url.PathEscape(noteID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Timeline returns the full audit trail for an application.
func (c *Client) Timeline(ctx context.Context, id string) ([]TimelineEvent, error) {
	var resp []TimelineEvent
	err := c.do(ctx, http.MethodGet, c.appPath(id, "timeline"), nil, &resp)
	return resp, err
}

// Progress returns the pipeline position for an application.
func (c *Client) Progress(ctx context.Context, id string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, c.appPath(id, "progress"), nil, &resp)
	return resp, err
}

// FollowUps lists applications with a scheduled follow-up date.
func (c *Client) FollowUps(ctx context.Context) ([]Application, error) {
	var resp []Application
	err := c.do(ctx, http.MethodGet, "v0/followups", nil, &resp)
	return resp, err
}

// Remind triggers a follow-up reminder for one application.
func (c *Client) Remind(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, c.appPath(id, "remind"), nil, nil)
}

// Stats returns aggregate metrics for the caller's search.
func (c *Client) Stats(ctx context.Context) (Statistics, error) {
	var resp Statistics
	err := c.do(ctx, http.MethodGet, "v0/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) appPath(id, suffix string) string {
	p := "v0/applications/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + strings.TrimLeft(suffix, "/")
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
