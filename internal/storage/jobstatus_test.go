package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

func TestJobStatusStore(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	jobs := store.NewJobStatusStore()

	status := &model.JobStatus{
		JobID:     "job-1",
		Name:      "match-batch",
		State:     model.JobRunning,
		Total:     50,
		Processed: 10,
		Progress:  20,
		StartedAt: time.Now(),
	}
	if err := jobs.Set(ctx, "match-batch", status, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := jobs.Get(ctx, "match-batch")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.JobID != "job-1" || got.Processed != 10 {
		t.Errorf("Unexpected status: %+v", got)
	}
	if !got.Active() {
		t.Error("Running job must report active")
	}

	// Overwrite with the terminal state.
	status.State = model.JobCompleted
	status.Processed = 50
	status.Progress = 100
	if err := jobs.Set(ctx, "match-batch", status, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err = jobs.Get(ctx, "match-batch")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Active() {
		t.Error("Completed job must not report active")
	}

	if err := jobs.Delete(ctx, "match-batch"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := jobs.Get(ctx, "match-batch"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing key is not an error.
	if err := jobs.Delete(ctx, "match-batch"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestJobStatusExpiry(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	jobs := store.NewJobStatusStore()

	status := &model.JobStatus{JobID: "job-2", Name: "short", State: model.JobRunning}
	if err := jobs.Set(ctx, "short", status, 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := jobs.Get(ctx, "short"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}

	// Zero TTL means no expiry.
	if err := jobs.Set(ctx, "forever", status, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := jobs.Get(ctx, "forever"); err != nil {
		t.Errorf("Expected persistent entry, got %v", err)
	}
}
