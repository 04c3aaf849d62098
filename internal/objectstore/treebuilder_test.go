package objectstore

import (
	"context"
	"sync"
	"testing"

	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/model"
)

func TestBuildPopulatesExpectedFileCount(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	upload := func(ctx context.Context, key string, content []byte) error {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, key)
		return nil
	}

	gen := generator.New(model.NewSeededTemplate(1))
	cfg := TreeConfig{
		Depth:           2,
		BranchingFactor: 3,
		FilesPerLevel:   6,
		TargetSize:      256,
	}

	if err := Build(context.Background(), upload, gen, cfg); err != nil {
		t.Fatalf("Build: %v", err)
	}

	leaves := 3 * 3 // BranchingFactor^Depth
	filesPerLeaf := 2 // ceil(6/3)
	want := leaves * filesPerLeaf
	if len(keys) != want {
		t.Fatalf("got %d files, want %d", len(keys), want)
	}
}

func TestBuildZeroDepthIsSingleLeaf(t *testing.T) {
	var count int
	upload := func(ctx context.Context, key string, content []byte) error {
		count++
		return nil
	}
	gen := generator.New(model.NewSeededTemplate(2))
	cfg := TreeConfig{Depth: 0, BranchingFactor: 4, FilesPerLevel: 4, TargetSize: 128}
	if err := Build(context.Background(), upload, gen, cfg); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d files at depth 0, want 1 (ceil(4/4))", count)
	}
}

func TestSerializeAllFormats(t *testing.T) {
	tpl := model.NewSeededTemplate(3)
	rec, err := tpl.Synthesize(512, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	for _, f := range DefaultFormats {
		content, err := Serialize(f, rec)
		if err != nil {
			t.Fatalf("Serialize(%s): %v", f, err)
		}
		if len(content) == 0 {
			t.Errorf("Serialize(%s) produced empty content", f)
		}
	}
}

func TestRandomFolderPathWithinDepth(t *testing.T) {
	for i := 0; i < 50; i++ {
		path := RandomFolderPath(3, 5)
		// each segment is "Depth_{n}_Folder_{k}/"; count by slash
		segments := 0
		for _, c := range path {
			if c == '/' {
				segments++
			}
		}
		if segments == 0 {
			t.Fatalf("path %q has 0 segments, want >= 1 (never the bucket root)", path)
		}
		if segments > 3 {
			t.Fatalf("path %q has %d segments, want <= 3", path, segments)
		}
	}
}

func TestRandomFolderPathZeroDepthIsEmpty(t *testing.T) {
	if path := RandomFolderPath(0, 5); path != "" {
		t.Fatalf("got %q, want empty path when maxDepth is 0", path)
	}
}
