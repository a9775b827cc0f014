package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"jobtrail/internal/config"
	"jobtrail/internal/db"
	"jobtrail/internal/domain"
	"jobtrail/internal/engine"
	"jobtrail/internal/migrate"
	"jobtrail/internal/notify"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Sink = notify.LogSink{}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{
		AllowLegacyActorHeader: true,
		DefaultActor:           "local-user",
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestApplicationFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/applications", map[string]any{
		"job_id": "job-1",
	}, nil)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", createRes.StatusCode, string(data))
	}
	var created domain.Application
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal application: %v", err)
	}
	if created.Status != "saved" {
		t.Fatalf("expected saved, got %s", created.Status)
	}

	transRes, transBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/applications/"+created.ID+"/transition", map[string]any{
		"status": "applied",
	}, nil)
	if transRes.StatusCode != http.StatusOK {
		t.Fatalf("transition status %d: %s", transRes.StatusCode, string(transBody))
	}
	var applied domain.Application
	_ = json.Unmarshal(transBody, &applied)
	if applied.Status != "applied" || applied.FollowUpDate == nil {
		t.Fatalf("expected applied with follow-up, got %+v", applied)
	}

	// backward move is a conflict with the envelope code
	backRes, backBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/applications/"+created.ID+"/transition", map[string]any{
		"status": "saved",
	}, nil)
	if backRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", backRes.StatusCode, string(backBody))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(backBody, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", envelope.Error.Code)
	}

	progRes, progBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/applications/"+created.ID+"/progress", nil, nil)
	if progRes.StatusCode != http.StatusOK {
		t.Fatalf("progress status %d: %s", progRes.StatusCode, string(progBody))
	}
	var progress domain.Progress
	_ = json.Unmarshal(progBody, &progress)
	if progress.CurrentWeight != 25 {
		t.Fatalf("expected weight 25, got %d", progress.CurrentWeight)
	}

	tlRes, tlBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/applications/"+created.ID+"/timeline", nil, nil)
	if tlRes.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", tlRes.StatusCode, string(tlBody))
	}
	var events []domain.TimelineEvent
	_ = json.Unmarshal(tlBody, &events)
	if len(events) < 2 {
		t.Fatalf("expected created + status_changed events, got %d", len(events))
	}

	statsRes, statsBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, nil)
	if statsRes.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", statsRes.StatusCode, string(statsBody))
	}
	var stats domain.Statistics
	_ = json.Unmarshal(statsBody, &stats)
	if stats.Total != 1 {
		t.Fatalf("expected 1 application in stats, got %d", stats.Total)
	}
}

func TestNotesOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/applications", map[string]any{"job_id": "job-n"}, nil)
	var a domain.Application
	_ = json.Unmarshal(data, &a)

	noteRes, noteBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/applications/"+a.ID+"/notes", map[string]any{
		"type":    "interview",
		"content": "ask about the team",
	}, nil)
	if noteRes.StatusCode != http.StatusCreated {
		t.Fatalf("add note status %d: %s", noteRes.StatusCode, string(noteBody))
	}
	var note domain.Note
	_ = json.Unmarshal(noteBody, &note)

	patchRes, patchBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/applications/"+a.ID+"/notes/"+note.ID, map[string]any{
		"content": "ask about the team and on-call",
	}, nil)
	if patchRes.StatusCode != http.StatusOK {
		t.Fatalf("update note status %d: %s", patchRes.StatusCode, string(patchBody))
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/applications/"+a.ID+"/notes", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list notes status %d: %s", listRes.StatusCode, string(listBody))
	}
	var notes []domain.Note
	_ = json.Unmarshal(listBody, &notes)
	if len(notes) != 1 || notes[0].Content != "ask about the team and on-call" {
		t.Fatalf("unexpected notes %+v", notes)
	}

	delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/applications/"+a.ID+"/notes/"+note.ID, nil, nil)
	if delRes.StatusCode >= 300 {
		t.Fatalf("delete note status %d: %s", delRes.StatusCode, string(delBody))
	}
}

func TestActorScoping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/applications", map[string]any{"job_id": "job-s"}, nil)
	var a domain.Application
	_ = json.Unmarshal(data, &a)

	// another actor cannot see it
	foreignRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/applications/"+a.ID, nil, map[string]string{
		"X-Actor-Id": "someone-else",
	})
	if foreignRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign actor, got %d", foreignRes.StatusCode)
	}

	missingRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/applications/no-such-id", nil, nil)
	if missingRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", missingRes.StatusCode)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}
}
