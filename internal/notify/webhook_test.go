package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobtrail/internal/config"
	"jobtrail/internal/domain"
	"jobtrail/internal/notify"
)

func TestWebhookSinkDelivers(t *testing.T) {
	var gotSecret, gotEvent string
	var gotBody struct {
		UserID   string          `json:"user_id"`
		Reminder domain.Reminder `json:"reminder"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-JobTrail-Secret")
		gotEvent = r.Header.Get("X-JobTrail-Event")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(config.WebhookConfig{URL: srv.URL, Secret: "s3cret"})
	err := sink.Send(context.Background(), "user-1", domain.Reminder{
		ApplicationID:    "app-1",
		UserID:           "user-1",
		JobID:            "job-1",
		Status:           domain.StatusApplied,
		DaysSinceApplied: 15,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotSecret != "s3cret" || gotEvent != domain.EventReminderSent {
		t.Fatalf("unexpected headers secret=%q event=%q", gotSecret, gotEvent)
	}
	if gotBody.UserID != "user-1" || gotBody.Reminder.ApplicationID != "app-1" || gotBody.Reminder.DaysSinceApplied != 15 {
		t.Fatalf("unexpected payload %+v", gotBody)
	}
}

func TestWebhookSinkErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(config.WebhookConfig{URL: srv.URL})
	err := sink.Send(context.Background(), "user-1", domain.Reminder{ApplicationID: "app-1"})
	if err == nil {
		t.Fatalf("expected delivery error")
	}
}
