package registry

import (
	"context"
	"testing"

	"github.com/minghe/crudloader/internal/errs"
)

func TestStartThenDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemStore())

	rec1, handle1, err := reg.Start(ctx, "document-db", "D/C", "D", "C", nil)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if handle1 == nil {
		t.Fatal("expected non-nil handle")
	}
	if rec1.Status != StatusRunning {
		t.Errorf("status = %s, want running", rec1.Status)
	}

	_, _, err = reg.Start(ctx, "document-db", "D/C", "D", "C", nil)
	if err == nil {
		t.Fatal("expected conflict on duplicate start")
	}
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.ResourceConflict {
		t.Errorf("expected ResourceConflict, got %v (ok=%v)", kind, ok)
	}
}

func TestStartDifferentContainersSucceed(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemStore())

	if _, _, err := reg.Start(ctx, "document-db", "D/C1", "D", "C1", nil); err != nil {
		t.Fatalf("start C1: %v", err)
	}
	if _, _, err := reg.Start(ctx, "document-db", "D/C2", "D", "C2", nil); err != nil {
		t.Fatalf("start C2: %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemStore())

	rec, _, err := reg.Start(ctx, "relational-db", "D/T", "D", "T", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	found, err := reg.Stop(ctx, rec.LoaderID)
	if err != nil || !found {
		t.Fatalf("first stop: found=%v err=%v", found, err)
	}
	got, _, _ := reg.Get(ctx, rec.LoaderID)
	if got.Status != StatusStopped {
		t.Fatalf("status = %s, want stopped", got.Status)
	}

	found, err = reg.Stop(ctx, rec.LoaderID)
	if err != nil || !found {
		t.Fatalf("second stop: found=%v err=%v", found, err)
	}
}

func TestStopUnknownLoaderReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemStore())

	found, err := reg.Stop(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected found=false for unknown loader_id")
	}
}

func TestResumeOfStoppedLoaderConflicts(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemStore())

	rec, _, err := reg.Start(ctx, "wide-column", "T", "T", "T", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := reg.Stop(ctx, rec.LoaderID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	_, _, err = reg.Resume(ctx, rec.LoaderID)
	if err == nil {
		t.Fatal("expected conflict resuming a stopped loader")
	}
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.ResourceConflict {
		t.Errorf("expected ResourceConflict, got %v (ok=%v)", kind, ok)
	}
}

func TestResumeOfRunningLoaderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemStore())

	rec, _, err := reg.Start(ctx, "document-db", "D/C", "D", "C", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	got, handle, err := reg.Resume(ctx, rec.LoaderID)
	if err != nil {
		t.Fatalf("resume running loader: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}
	if handle == nil {
		t.Error("expected a live handle for a running loader")
	}
}

func TestFreeingContainerAfterStopAllowsRestart(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemStore())

	rec, _, err := reg.Start(ctx, "document-db", "D/C", "D", "C", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := reg.Stop(ctx, rec.LoaderID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if _, _, err := reg.Start(ctx, "document-db", "D/C", "D", "C", nil); err != nil {
		t.Fatalf("expected start to succeed after stop freed the container: %v", err)
	}
}

func TestCancelHandleShouldStop(t *testing.T) {
	h := &CancelHandle{state: StatusRunning}
	if h.ShouldStop() {
		t.Fatal("running handle should not signal stop")
	}
	h.Pause()
	if h.ShouldStop() {
		t.Fatal("paused handle should not signal stop")
	}
	h.Stop()
	if !h.ShouldStop() {
		t.Fatal("stopped handle should signal stop")
	}
}
