package engine

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/model"
	"github.com/minghe/crudloader/internal/registry"
)

// fakeAdapter is an in-memory backend.Adapter for exercising the engine
// without a real datastore.
type fakeAdapter struct {
	mu    sync.Mutex
	items map[string]map[string]any
	caps  backend.Capabilities
	next  int
}

func newFakeAdapter(caps backend.Capabilities) *fakeAdapter {
	return &fakeAdapter{items: make(map[string]map[string]any), caps: caps}
}

func (f *fakeAdapter) Kind() backend.Kind              { return backend.KindMongo }
func (f *fakeAdapter) Capabilities() backend.Capabilities { return f.caps }

func (f *fakeAdapter) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.items)), nil
}

func (f *fakeAdapter) InsertOne(ctx context.Context, record map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	key := fakeKey(f.next)
	record["key"] = key
	f.items[key] = record
	return nil
}

func (f *fakeAdapter) InsertBatch(ctx context.Context, records []map[string]any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.next++
		key := fakeKey(f.next)
		r["key"] = key
		f.items[key] = r
	}
	return len(records), nil
}

func (f *fakeAdapter) PickRandomKey(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.items {
		return k, nil
	}
	return "", backend.ErrEmptyContainer
}

func (f *fakeAdapter) UpdateByKey(ctx context.Context, key string, record map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = record
	return nil
}

func (f *fakeAdapter) DeleteByKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, key)
	return nil
}

func (f *fakeAdapter) InitializeContainer(ctx context.Context) error { return nil }
func (f *fakeAdapter) DropContainer(ctx context.Context) error       { return nil }
func (f *fakeAdapter) Close(ctx context.Context) error               { return nil }

func fakeKey(n int) string {
	return "k" + strconv.Itoa(n)
}

func TestCalculateOptimalBatchSize(t *testing.T) {
	cases := []struct {
		target, current int64
		wantMin         int64
	}{
		{1000, 0, 1},
		{1000, 990, 1},
		{100000, 0, 1},
	}
	for _, c := range cases {
		got := calculateOptimalBatchSize(c.target, c.current, maxBatchSize, upperFactor, lowerFactor)
		if got < 1 || got > maxBatchSize {
			t.Errorf("calculateOptimalBatchSize(%d,%d) = %d, out of bounds", c.target, c.current, got)
		}
	}
}

func TestCalculateOptimalBatchSizeMonotoneProgress(t *testing.T) {
	target := int64(10000)
	current := int64(0)
	for current < target {
		b := calculateOptimalBatchSize(target, current, maxBatchSize, upperFactor, lowerFactor)
		if b < 1 {
			t.Fatalf("batch size dropped below 1 at current=%d", current)
		}
		current += b
	}
}

func TestPhaseAConverges(t *testing.T) {
	adapter := newFakeAdapter(backend.Capabilities{Insert: true, Update: true, Delete: true})
	gen := generator.New(model.NewSeededTemplate(1))
	e := New(Config{
		Adapter:     adapter,
		Generator:   gen,
		Handle:      &registry.CancelHandle{},
		BackendKind: generator.KindDocumentDB,
		TargetSize:  512,
		Target:      50,
	})

	if err := e.phaseA(context.Background()); err != nil {
		t.Fatalf("phaseA: %v", err)
	}
	c, _ := adapter.Count(context.Background())
	if c != 50 {
		t.Fatalf("population after phaseA = %d, want 50", c)
	}
}

func TestPhaseAConvergesFromAbove(t *testing.T) {
	adapter := newFakeAdapter(backend.Capabilities{Insert: true, Update: true, Delete: true})
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		_ = adapter.InsertOne(ctx, map[string]any{})
	}
	gen := generator.New(model.NewSeededTemplate(1))
	e := New(Config{
		Adapter:     adapter,
		Generator:   gen,
		Handle:      &registry.CancelHandle{},
		BackendKind: generator.KindDocumentDB,
		TargetSize:  512,
		Target:      50,
	})
	if err := e.phaseA(ctx); err != nil {
		t.Fatalf("phaseA: %v", err)
	}
	c, _ := adapter.Count(ctx)
	if c != 50 {
		t.Fatalf("population after phaseA = %d, want 50", c)
	}
}

func TestRunRespectsStopHandle(t *testing.T) {
	adapter := newFakeAdapter(backend.Capabilities{Insert: true, Update: true, Delete: true})
	gen := generator.New(model.NewSeededTemplate(1))
	handle := &registry.CancelHandle{}
	e := New(Config{
		Adapter:     adapter,
		Generator:   gen,
		Handle:      handle,
		BackendKind: generator.KindDocumentDB,
		TargetSize:  512,
		Target:      20,
		BufferWidth: 5,
	})

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	handle.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}

func TestBandConvergenceAfterPerturbation(t *testing.T) {
	adapter := newFakeAdapter(backend.Capabilities{Insert: true, Update: true, Delete: true})
	ctx := context.Background()
	gen := generator.New(model.NewSeededTemplate(1))
	handle := &registry.CancelHandle{}
	e := New(Config{
		Adapter:     adapter,
		Generator:   gen,
		Handle:      handle,
		BackendKind: generator.KindDocumentDB,
		TargetSize:  256,
		Target:      30,
		BufferWidth: 5,
	})
	if err := e.phaseA(ctx); err != nil {
		t.Fatalf("phaseA: %v", err)
	}

	// Perturb: an external writer pushes the population well above the band.
	for i := 0; i < 20; i++ {
		_ = adapter.InsertOne(ctx, map[string]any{})
	}

	for i := 0; i < 200; i++ {
		if err := e.phaseBIteration(ctx); err != nil {
			t.Fatalf("phaseBIteration: %v", err)
		}
	}

	c, _ := adapter.Count(ctx)
	if c < 25 || c > 35 {
		t.Fatalf("population %d outside band [25,35] after steady-state iterations", c)
	}
}
