package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/errs"
	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/objectstore"
	"github.com/minghe/crudloader/internal/registry"
	"github.com/minghe/crudloader/internal/telemetry"
)

// BucketAdapterFactory builds a backend.Adapter scoped to one
// bucket+folder path, used by the object-store engine to get a
// per-folder Adapter on demand as it picks random folders to act on.
// Grounded on perform_crud_on_s3's one-task-per-bucket fan-out, with the
// per-iteration folder chosen the way crud_for_bucket does.
type BucketAdapterFactory func(bucket, folderPath string) backend.Adapter

// ObjectStoreConfig parameterizes the per-bucket parallel CRUD variant.
type ObjectStoreConfig struct {
	Buckets         []string
	AdapterFor      BucketAdapterFactory
	Generator       *generator.Generator
	Handle          *registry.CancelHandle
	OpLog           *telemetry.OperationLog
	TargetSize      int
	Depth           int
	BranchingFactor int
	MaxFiles        int64
	MinFiles        int64
	WallClock       time.Duration
}

// ObjectStoreEngine drives the object-store variant of the CRUD Loop
// Engine: one goroutine per bucket, each repeatedly picking a random
// folder path and performing insert-or-delete against that folder's file
// count, rather than a single global population.
type ObjectStoreEngine struct {
	cfg ObjectStoreConfig
}

// NewObjectStore returns an ObjectStoreEngine for the given configuration.
func NewObjectStore(cfg ObjectStoreConfig) *ObjectStoreEngine {
	return &ObjectStoreEngine{cfg: cfg}
}

// Run drives every configured bucket in parallel until the cancellation
// handle signals stop or the wall-clock budget elapses.
func (e *ObjectStoreEngine) Run(ctx context.Context) error {
	var deadline <-chan time.Time
	if e.cfg.WallClock > 0 {
		timer := time.NewTimer(e.cfg.WallClock)
		defer timer.Stop()
		deadline = timer.C
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if deadline != nil {
		go func() {
			select {
			case <-deadline:
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	eg, egCtx := errgroup.WithContext(runCtx)
	for _, bucket := range e.cfg.Buckets {
		bucket := bucket
		eg.Go(func() error {
			return e.runBucket(egCtx, bucket)
		})
	}
	return eg.Wait()
}

// runBucket repeatedly picks a random folder path and performs a
// band-guarded insert or delete against that folder's file count,
// matching crud_for_bucket's per-bucket loop.
func (e *ObjectStoreEngine) runBucket(ctx context.Context, bucket string) error {
	for {
		if e.cfg.Handle.ShouldStop() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		folder := objectstore.RandomFolderPath(e.cfg.Depth, e.cfg.BranchingFactor)
		adapter := e.cfg.AdapterFor(bucket, folder)

		if err := e.bandIteration(ctx, adapter); err != nil {
			if kind, ok := errs.KindOf(err); ok && kind == errs.AdapterFatal {
				return err
			}
		}
	}
}

func (e *ObjectStoreEngine) bandIteration(ctx context.Context, adapter backend.Adapter) error {
	c, err := adapter.Count(ctx)
	if err != nil {
		return errs.New(errs.AdapterTransient, "objectstore_engine.count", err)
	}

	caps := adapter.Capabilities()
	ops := caps.Enabled()
	if len(ops) == 0 {
		time.Sleep(idleInterval)
		return nil
	}

	op := ops[rand.Intn(len(ops))]
	switch op {
	case backend.OpInsert:
		if e.cfg.MaxFiles > 0 && c >= e.cfg.MaxFiles {
			return nil
		}
		return e.insertOne(ctx, adapter)
	case backend.OpDelete:
		if c <= e.cfg.MinFiles {
			return nil
		}
		return e.deleteRandom(ctx, adapter)
	default:
		return nil
	}
}

func (e *ObjectStoreEngine) insertOne(ctx context.Context, adapter backend.Adapter) error {
	rec, err := e.cfg.Generator.GenerateOne(e.cfg.TargetSize, nil)
	if err != nil {
		return errs.New(errs.GeneratorError, "objectstore_engine.insertOne.generate", err)
	}
	payload, err := generator.CoerceForBackend(rec, generator.KindObjectStore, e.cfg.TargetSize)
	if err != nil {
		return errs.New(errs.GeneratorError, "objectstore_engine.insertOne.coerce", err)
	}
	start := time.Now()
	err = adapter.InsertOne(ctx, payload)
	if e.cfg.OpLog != nil {
		e.cfg.OpLog.Record("insert", time.Since(start), err == nil)
	}
	if err != nil {
		return errs.New(errs.AdapterTransient, "objectstore_engine.insertOne", err)
	}
	return nil
}

func (e *ObjectStoreEngine) deleteRandom(ctx context.Context, adapter backend.Adapter) error {
	key, err := adapter.PickRandomKey(ctx)
	if err == backend.ErrEmptyContainer {
		return nil
	}
	if err != nil {
		return errs.New(errs.AdapterTransient, "objectstore_engine.deleteRandom.pick", err)
	}
	start := time.Now()
	err = adapter.DeleteByKey(ctx, key)
	if e.cfg.OpLog != nil {
		e.cfg.OpLog.Record("delete", time.Since(start), err == nil)
	}
	if err != nil {
		return errs.New(errs.AdapterTransient, "objectstore_engine.deleteRandom", err)
	}
	return nil
}

// Rebalance empties and repopulates every configured bucket's tree,
// matching the original system's rebalance_s3: restart-after-stop
// re-lists the tree's current shape (there is no cached tree state
// across a stop/resume cycle) and then rebuilds it fresh.
// uploadFor returns the Uploader that writes into the named bucket. No
// caller in this repository invokes Rebalance.
func (e *ObjectStoreEngine) Rebalance(ctx context.Context, uploadFor func(bucket string) objectstore.Uploader, cfg objectstore.TreeConfig) error {
	for _, bucket := range e.cfg.Buckets {
		root := e.cfg.AdapterFor(bucket, "")
		if err := root.DropContainer(ctx); err != nil {
			return fmt.Errorf("objectstore_engine: rebalance drop %s: %w", bucket, err)
		}
		if err := objectstore.Build(ctx, uploadFor(bucket), e.cfg.Generator, cfg); err != nil {
			return fmt.Errorf("objectstore_engine: rebalance build %s: %w", bucket, err)
		}
	}
	return nil
}
