package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	db, err := Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := NewRunStore(db)
	runID := uuid.NewString()

	if err := store.StartRun(ctx, runID, "UC1"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := store.MarkFound(ctx, runID, "abc123", "Acme", "Launch Event", 3); err != nil {
		t.Fatalf("MarkFound: %v", err)
	}
	if err := store.FinishRun(ctx, runID, "download_failed", 1, "exit status 1", errors.New("download failed")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	r, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.VideoID != "abc123" || r.Attempts != 3 || r.Phase != "finished" || r.Outcome != "download_failed" {
		t.Errorf("run = %+v", r)
	}
	if !r.ExitCode.Valid || r.ExitCode.Int64 != 1 || r.DownloaderStatus != "exit status 1" {
		t.Errorf("exit = %+v status = %q", r.ExitCode, r.DownloaderStatus)
	}
}

func TestMarkFoundUnknownRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	err := NewRunStore(db).MarkFound(ctx, uuid.NewString(), "v", "c", "t", 1)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestNilRunStoreIsNoop(t *testing.T) {
	var s *RunStore
	ctx := context.Background()
	if err := s.StartRun(ctx, "r", "c"); err != nil {
		t.Error(err)
	}
	if err := s.MarkFound(ctx, "r", "v", "c", "t", 1); err != nil {
		t.Error(err)
	}
	if err := s.FinishRun(ctx, "r", "ok", 0, "", nil); err != nil {
		t.Error(err)
	}
}
