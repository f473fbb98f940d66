package repo_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"opsline/internal/db"
	"opsline/internal/migrate"
	"opsline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Now: func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }}
}

func TestInsertAssignsServerID(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	stored, err := r.InsertRecord(ctx, "sops", json.RawMessage(`{"id":"client-temp","title":"Opening"}`), "u1")
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(stored, &rec); err != nil {
		t.Fatal(err)
	}
	if rec["id"] == "client-temp" || rec["id"] == "" {
		t.Fatalf("client id not replaced: %v", rec["id"])
	}
	if rec["created_by"] != "u1" || rec["created_at"] == "" {
		t.Fatalf("meta missing: %v", rec)
	}
}

func TestUpdateMergesAndProtectsID(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	stored, err := r.InsertRecord(ctx, "jobs", json.RawMessage(`{"title":"Job","status":"pending"}`), "u1")
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	json.Unmarshal(stored, &rec)
	id := rec["id"].(string)

	merged, err := r.UpdateRecord(ctx, "jobs", id, json.RawMessage(`{"id":"spoofed","status":"in-progress"}`))
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	json.Unmarshal(merged, &out)
	if out["id"] != id {
		t.Fatalf("id mutated: %v", out["id"])
	}
	if out["status"] != "in-progress" || out["title"] != "Job" {
		t.Fatalf("merge broken: %v", out)
	}

	if _, err := r.UpdateRecord(ctx, "jobs", "missing", json.RawMessage(`{}`)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListWithFilters(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if _, err := r.InsertRecord(ctx, "sops", json.RawMessage(`{"title":"A","status":"active"}`), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.InsertRecord(ctx, "sops", json.RawMessage(`{"title":"B","status":"archived"}`), ""); err != nil {
		t.Fatal(err)
	}

	all, err := r.ListRecords(ctx, "sops", nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
	active, err := r.ListRecords(ctx, "sops", map[string]string{"status": "active"})
	if err != nil || len(active) != 1 {
		t.Fatalf("filtered list: %d %v", len(active), err)
	}
	if _, err := r.ListRecords(ctx, "sops", map[string]string{"bad field": "x"}); err == nil {
		t.Fatal("expected invalid filter field error")
	}
}

func TestChangeLogSequencing(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	stored, err := r.InsertRecord(ctx, "jobs", json.RawMessage(`{"title":"J"}`), "")
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	json.Unmarshal(stored, &rec)
	id := rec["id"].(string)

	if _, err := r.UpdateRecord(ctx, "jobs", id, json.RawMessage(`{"title":"J2"}`)); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteRecord(ctx, "jobs", id); err != nil {
		t.Fatal(err)
	}

	changes, err := r.ChangesAfter(ctx, "jobs", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	ops := []string{changes[0].Op, changes[1].Op, changes[2].Op}
	if ops[0] != "insert" || ops[1] != "update" || ops[2] != "delete" {
		t.Fatalf("ops out of order: %v", ops)
	}
	if !(changes[0].Seq < changes[1].Seq && changes[1].Seq < changes[2].Seq) {
		t.Fatalf("seq not monotonic: %+v", changes)
	}

	tail, err := r.ChangesAfter(ctx, "jobs", changes[1].Seq, 10)
	if err != nil || len(tail) != 1 || tail[0].Op != "delete" {
		t.Fatalf("cursor read: %+v %v", tail, err)
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	r := newRepo(t)
	if err := r.DeleteRecord(context.Background(), "jobs", "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidCollection(t *testing.T) {
	if !repo.ValidCollection("sops") || repo.ValidCollection("users") {
		t.Fatal("collection whitelist broken")
	}
}
