// Package objectstore builds the parameterized folder hierarchy the CRUD
// Loop Engine's object-store variant operates against, and holds the
// per-format file serializers used to populate it.
//
// Folder naming and the build-then-CRUD sequencing are grounded on
// original_source/Docloader/doc_loader.py's generate_random_folder_path
// and create_s3_using_specified_config.
package objectstore

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/minghe/crudloader/internal/generator"
)

// Uploader writes one file's content at a given key. Supplied by the
// caller (the HTTP layer's s3Uploader, a PutObject call bound to one
// bucket), keeping this package free of any direct AWS SDK dependency.
type Uploader func(ctx context.Context, key string, content []byte) error

// TreeConfig parameterizes one bucket's folder hierarchy.
type TreeConfig struct {
	Depth            int // D
	BranchingFactor  int // B
	FilesPerLevel    int // F
	TargetSize       int // synthesized record size in bytes for file content
	Formats          []Format
}

// Build populates a bucket with a balanced tree of depth cfg.Depth and
// branching cfg.BranchingFactor, cycling through cfg.Formats at each
// leaf. Depth-first recursion is parallelized per level with an
// errgroup, the same concurrency primitive used throughout this system's
// worker pools.
func Build(ctx context.Context, upload Uploader, gen *generator.Generator, cfg TreeConfig) error {
	if cfg.Depth < 0 {
		return fmt.Errorf("objectstore: negative depth %d", cfg.Depth)
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = DefaultFormats
	}
	return buildLevel(ctx, upload, gen, cfg, "", 0)
}

func buildLevel(ctx context.Context, upload Uploader, gen *generator.Generator, cfg TreeConfig, prefix string, level int) error {
	if level == cfg.Depth {
		return populateLeaf(ctx, upload, gen, cfg, prefix)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for k := 0; k < cfg.BranchingFactor; k++ {
		k := k
		eg.Go(func() error {
			folder := fmt.Sprintf("%sDepth_%d_Folder_%d/", prefix, level, k)
			return buildLevel(egCtx, upload, gen, cfg, folder, level+1)
		})
	}
	return eg.Wait()
}

// populateLeaf writes ⌈F/B⌉ files to one leaf folder, cycling through
// the configured formats, matching the spec's per-leaf file count.
func populateLeaf(ctx context.Context, upload Uploader, gen *generator.Generator, cfg TreeConfig, folder string) error {
	branching := cfg.BranchingFactor
	if branching <= 0 {
		branching = 1
	}
	fileCount := int(math.Ceil(float64(cfg.FilesPerLevel) / float64(branching)))

	for i := 0; i < fileCount; i++ {
		format := cfg.Formats[i%len(cfg.Formats)]
		rec, err := gen.GenerateOne(cfg.TargetSize, nil)
		if err != nil {
			continue // generator failures are dropped, never fatal to the tree build
		}
		content, err := Serialize(format, rec)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%sfile_%d%s", folder, i, format.Extension())
		if err := upload(ctx, key, content); err != nil {
			return fmt.Errorf("objectstore: upload %s: %w", key, err)
		}
	}
	return nil
}

// RandomFolderPath picks a uniformly random depth in [1, maxDepth] and a
// random folder index at each level down to it, matching
// generate_random_folder_path's sampling behavior used by the engine's
// object-store variant to choose which folder to act on next. A tree
// built with maxDepth <= 0 has no folders at all — files live directly
// under the bucket root — so the only valid path there is empty;
// otherwise the path always descends at least one level, never landing
// on the bucket root, so callers operate against one folder's file
// count rather than the whole bucket.
func RandomFolderPath(maxDepth, branchingFactor int) string {
	if maxDepth <= 0 {
		return ""
	}
	depth := 1 + rand.Intn(maxDepth)
	path := ""
	for level := 0; level < depth; level++ {
		k := 0
		if branchingFactor > 0 {
			k = rand.Intn(branchingFactor)
		}
		path += fmt.Sprintf("Depth_%d_Folder_%d/", level, k)
	}
	return path
}
