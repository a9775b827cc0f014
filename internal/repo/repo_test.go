package repo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"jobtrail/internal/db"
	"jobtrail/internal/domain"
	"jobtrail/internal/migrate"
	"jobtrail/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func insertApp(t *testing.T, r repo.Repo, a domain.Application) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := r.InsertApplication(ctx, tx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestListApplicationsKeysetPaging(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		insertApp(t, r, domain.Application{
			ID:            fmt.Sprintf("app-%d", i),
			UserID:        "user-1",
			JobID:         fmt.Sprintf("job-%d", i),
			Status:        domain.StatusSaved,
			AppliedAt:     ts,
			CreatedAt:     ts,
			LastUpdatedAt: ts,
		})
	}

	seen := map[string]bool{}
	filters := repo.ApplicationFilters{UserID: "user-1", Limit: 2}
	for {
		page, err := r.ListApplications(ctx, filters)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, a := range page {
			if seen[a.ID] {
				t.Fatalf("duplicate %s across pages", a.ID)
			}
			seen[a.ID] = true
		}
		last := page[len(page)-1]
		filters.CursorCreatedAt = last.CreatedAt
		filters.CursorID = last.ID
		if len(page) < 2 {
			break
		}
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 applications across pages, got %d", len(seen))
	}
}

func TestListApplicationsNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		insertApp(t, r, domain.Application{
			ID: fmt.Sprintf("app-%d", i), UserID: "user-1", JobID: "job",
			Status: domain.StatusSaved, AppliedAt: ts, CreatedAt: ts, LastUpdatedAt: ts,
		})
	}
	items, err := r.ListApplications(ctx, repo.ApplicationFilters{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 || items[0].ID != "app-2" || items[2].ID != "app-0" {
		t.Fatalf("expected newest first, got %+v", items)
	}
}

func TestClaimReminderIsConditional(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -1).Format(time.RFC3339)
	ts := now.AddDate(0, 0, -15).Format(time.RFC3339)
	insertApp(t, r, domain.Application{
		ID: "app-1", UserID: "user-1", JobID: "job-1",
		Status: domain.StatusApplied, AppliedAt: ts, CreatedAt: ts, LastUpdatedAt: ts,
		FollowUpDate: &due,
	})

	nowStr := now.Format(time.RFC3339)
	cutoff := now.AddDate(0, 0, -7).Format(time.RFC3339)

	claim := func() bool {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer tx.Rollback()
		ok, err := r.ClaimReminder(ctx, tx, "app-1", nowStr, cutoff)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
		return ok
	}

	if !claim() {
		t.Fatalf("first claim should succeed")
	}
	if claim() {
		t.Fatalf("second claim within cooldown should lose")
	}

	a, err := r.GetApplication(ctx, "app-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.LastReminderSentAt == nil || *a.LastReminderSentAt != nowStr {
		t.Fatalf("expected claim marker %s, got %v", nowStr, a.LastReminderSentAt)
	}
}

func TestUpdateMissingApplication(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = r.UpdateApplication(ctx, tx, domain.Application{ID: "ghost", Status: domain.StatusSaved})
	if err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
