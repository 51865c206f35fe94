package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/outing/internal/storage"
)

type fakeRefresher struct {
	calls int
	errs  []error
}

func (f *fakeRefresher) Refresh(context.Context) (RefreshResult, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return RefreshResult{}, err
		}
	}
	return RefreshResult{Success: true, TotalActivities: 3}, nil
}

func jobStatus(t *testing.T, store *storage.Store, id string) (status string, attempts int) {
	t.Helper()
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, id).Scan(&status, &attempts); err != nil {
		t.Fatalf("query job %s: %v", id, err)
	}
	return status, attempts
}

func onlyJobID(t *testing.T, store *storage.Store, status string) string {
	t.Helper()
	var id string
	if err := store.DB().QueryRow(`SELECT id FROM jobs WHERE type = ? AND status = ?`, JobType, status).Scan(&id); err != nil {
		t.Fatalf("finding %s job: %v", status, err)
	}
	return id
}

// resetRunAfter sets run_after to now so the job is immediately claimable.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID); err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func TestEnqueue_SkipsWhenPending(t *testing.T) {
	store := openTestStore(t)

	added, err := Enqueue(store, 0, "startup")
	if err != nil || !added {
		t.Fatalf("first Enqueue = %v, %v", added, err)
	}
	added, err = Enqueue(store, 0, "startup")
	if err != nil || added {
		t.Errorf("second Enqueue = %v, %v; want not added", added, err)
	}
	if n, _ := store.PendingJobs(JobType); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestWorker_ProcessesJobAndReschedules(t *testing.T) {
	store := openTestStore(t)
	if err := EnqueueNow(store, 0, "manual"); err != nil {
		t.Fatal(err)
	}
	first := onlyJobID(t, store, "pending")

	ref := &fakeRefresher{}
	w := NewWorker(store, ref, time.Hour, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if ref.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", ref.calls)
	}

	if status, _ := jobStatus(t, store, first); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}

	// The follow-up is queued an interval out, so nothing is claimable now.
	if n, _ := store.PendingJobs(JobType); n != 1 {
		t.Fatalf("pending after run = %d, want 1", n)
	}
	didWork, err = w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("second RunOnce = %v, %v; want idle", didWork, err)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	EnqueueNow(store, 0, "manual")
	id := onlyJobID(t, store, "pending")

	ref := &fakeRefresher{errs: []error{errors.New("all sites down")}}
	w := NewWorker(store, ref, time.Hour, 0)
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 1 error: %v", err)
	}
	status, attempts := jobStatus(t, store, id)
	if status != "pending" || attempts != 1 {
		t.Errorf("after failure: status=%q attempts=%d, want pending/1", status, attempts)
	}
	// The retry stands in for the next scheduled run.
	if n, _ := store.PendingJobs(JobType); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}

	resetRunAfter(t, store, id)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 2 error: %v", err)
	}
	if status, _ := jobStatus(t, store, id); status != "completed" {
		t.Errorf("after retry: status=%q, want completed", status)
	}
}

func TestWorker_NoRescheduleWhenIntervalDisabled(t *testing.T) {
	store := openTestStore(t)
	EnqueueNow(store, 0, "manual")

	w := NewWorker(store, &fakeRefresher{}, 0, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.PendingJobs(JobType); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &fakeRefresher{}, 0, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
