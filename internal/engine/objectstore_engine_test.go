package engine

import (
	"context"
	"testing"
	"time"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/model"
	"github.com/minghe/crudloader/internal/registry"
)

func TestObjectStoreEngineRespectsFileBand(t *testing.T) {
	adapters := make(map[string]*fakeAdapter)
	factory := func(bucket, folder string) backend.Adapter {
		key := bucket + "/" + folder
		a, ok := adapters[key]
		if !ok {
			a = newFakeAdapter(backend.Capabilities{Insert: true, Delete: true})
			// Seed the folder above the max so the first iterations delete.
			for i := 0; i < 12; i++ {
				_ = a.InsertOne(context.Background(), map[string]any{})
			}
			adapters[key] = a
		}
		return a
	}

	handle := &registry.CancelHandle{}
	e := NewObjectStore(ObjectStoreConfig{
		Buckets:         []string{"bucket-0"},
		AdapterFor:      factory,
		Generator:       generator.New(model.NewSeededTemplate(1)),
		Handle:          handle,
		TargetSize:      128,
		Depth:           0,
		BranchingFactor: 1,
		MaxFiles:        10,
		MinFiles:        1,
	})

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	handle.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after Stop")
	}

	for key, a := range adapters {
		c, _ := a.Count(context.Background())
		if c > 10 {
			t.Errorf("folder %s file count %d exceeds MaxFiles=10", key, c)
		}
	}
}
