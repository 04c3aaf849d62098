// Package engine implements the CRUD Loop Engine: per-backend
// steady-state controllers that maintain a container's population in a
// buffer band around a target, subject to adaptive batching,
// cancellation, and concurrent document synthesis.
//
// Phase A (initial convergence) and Phase B (randomized steady-state
// CRUD) are grounded on original_source/Docloader/doc_loader.py's
// calculate_optimal_batch_size and perform_crud_on_mongo.
package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/errs"
	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/registry"
	"github.com/minghe/crudloader/internal/telemetry"
)

const (
	upperFactor   = 0.10
	lowerFactor   = 0.01
	maxBatchSize  = 10_000
	idleInterval  = 200 * time.Millisecond
)

// Config parameterizes one Engine instance — one per loader.
type Config struct {
	Adapter      backend.Adapter
	Generator    *generator.Generator
	Handle       *registry.CancelHandle
	OpLog        *telemetry.OperationLog // optional
	BackendKind  generator.BackendKind
	TargetSize   int           // synthesized record size in bytes
	Target       int64         // target population T
	BufferWidth  int64         // buffer half-width W; 0 means unbounded
	WallClock    time.Duration // 0 means no budget
}

// Engine drives one loader's steady-state CRUD loop.
type Engine struct {
	cfg Config
}

// New returns an Engine for the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Reconcile runs a one-shot convergence pass (phase A, without phase B)
// against cfg's target population and returns once C == Target. It
// backs the mysql `restore` endpoint, which re-converges a table's
// population without spawning a steady-state loader. The s3 `restore`
// endpoint does not use it; it drops and rebuilds the bucket's tree.
func Reconcile(ctx context.Context, cfg Config) error {
	if cfg.Handle == nil {
		cfg.Handle = &registry.CancelHandle{}
	}
	e := New(cfg)
	return e.phaseA(ctx)
}

// Run executes Phase A then Phase B until the cancellation handle signals
// stop, the wall-clock budget (if any) elapses, or ctx is canceled. On
// exit it performs the final reconciliation pass described in the
// concurrency model's Timeouts paragraph.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.phaseA(ctx); err != nil {
		return err
	}

	var deadline <-chan time.Time
	if e.cfg.WallClock > 0 {
		timer := time.NewTimer(e.cfg.WallClock)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if e.cfg.Handle.ShouldStop() {
			break
		}
		select {
		case <-ctx.Done():
			return e.reconcile(ctx)
		case <-deadline:
			return e.reconcile(ctx)
		default:
		}

		if err := e.phaseBIteration(ctx); err != nil {
			if kind, ok := errs.KindOf(err); ok && kind == errs.AdapterFatal {
				return err
			}
			// Transient/generator errors: logged upstream via OpLog,
			// iteration advances.
		}
	}
	return e.reconcile(ctx)
}

// phaseA performs the initial convergence: insert until C >= T, then
// delete until C <= T (one of the two loops is a no-op depending on
// starting population).
func (e *Engine) phaseA(ctx context.Context) error {
	c, err := e.cfg.Adapter.Count(ctx)
	if err != nil {
		return errs.New(errs.AdapterFatal, "engine.phaseA.count", err)
	}

	for c < e.cfg.Target {
		if e.cfg.Handle.ShouldStop() {
			return nil
		}
		b := calculateOptimalBatchSize(e.cfg.Target, c, maxBatchSize, upperFactor, lowerFactor)
		if err := e.insertBatch(ctx, int(b)); err != nil {
			return errs.New(errs.AdapterFatal, "engine.phaseA.insert_batch", err)
		}
		c, err = e.cfg.Adapter.Count(ctx)
		if err != nil {
			return errs.New(errs.AdapterFatal, "engine.phaseA.count", err)
		}
	}

	for c > e.cfg.Target {
		if e.cfg.Handle.ShouldStop() {
			return nil
		}
		if err := e.deleteRandom(ctx); err != nil {
			return errs.New(errs.AdapterFatal, "engine.phaseA.delete", err)
		}
		c, err = e.cfg.Adapter.Count(ctx)
		if err != nil {
			return errs.New(errs.AdapterFatal, "engine.phaseA.count", err)
		}
	}

	return nil
}

// phaseBIteration performs one randomized-operation steady-state step.
func (e *Engine) phaseBIteration(ctx context.Context) error {
	c, err := e.cfg.Adapter.Count(ctx)
	if err != nil {
		return errs.New(errs.AdapterTransient, "engine.phaseB.count", err)
	}

	maxPop := int64(math.MaxInt64)
	minPop := int64(0)
	if e.cfg.BufferWidth > 0 {
		maxPop = e.cfg.Target + e.cfg.BufferWidth
		minPop = e.cfg.Target - e.cfg.BufferWidth
		if minPop < 0 {
			minPop = 0
		}
	}

	caps := e.cfg.Adapter.Capabilities()
	ops := caps.Enabled()
	if len(ops) == 0 {
		time.Sleep(idleInterval)
		return nil
	}

	if minPop == maxPop {
		// Tie-break: only updates (if supported), else idle.
		if caps.Update {
			return e.updateRandom(ctx)
		}
		time.Sleep(idleInterval)
		return nil
	}

	op := ops[rand.Intn(len(ops))]
	switch op {
	case backend.OpInsert:
		if c >= maxPop {
			return nil
		}
		return e.insertOne(ctx)
	case backend.OpUpdate:
		return e.updateRandom(ctx)
	case backend.OpDelete:
		if c <= minPop {
			return nil
		}
		return e.deleteRandom(ctx)
	}
	return nil
}

// reconcile forces C == T before the loader exits, matching the
// perform_crud_on_mongo post-loop block's final convergence pass.
func (e *Engine) reconcile(ctx context.Context) error {
	c, err := e.cfg.Adapter.Count(ctx)
	if err != nil {
		return errs.New(errs.AdapterFatal, "engine.reconcile.count", err)
	}
	for c < e.cfg.Target {
		b := calculateOptimalBatchSize(e.cfg.Target, c, maxBatchSize, upperFactor, lowerFactor)
		if err := e.insertBatch(ctx, int(b)); err != nil {
			return errs.New(errs.AdapterFatal, "engine.reconcile.insert_batch", err)
		}
		c, err = e.cfg.Adapter.Count(ctx)
		if err != nil {
			return errs.New(errs.AdapterFatal, "engine.reconcile.count", err)
		}
	}
	for c > e.cfg.Target {
		if err := e.deleteRandom(ctx); err != nil {
			return errs.New(errs.AdapterFatal, "engine.reconcile.delete", err)
		}
		c, err = e.cfg.Adapter.Count(ctx)
		if err != nil {
			return errs.New(errs.AdapterFatal, "engine.reconcile.count", err)
		}
	}
	return nil
}

func (e *Engine) insertOne(ctx context.Context) error {
	rec, err := e.cfg.Generator.GenerateOne(e.cfg.TargetSize, nil)
	if err != nil {
		return errs.New(errs.GeneratorError, "engine.insertOne.generate", err)
	}
	payload, err := generator.CoerceForBackend(rec, e.cfg.BackendKind, e.cfg.TargetSize)
	if err != nil {
		return errs.New(errs.GeneratorError, "engine.insertOne.coerce", err)
	}
	start := time.Now()
	err = e.cfg.Adapter.InsertOne(ctx, payload)
	e.record("insert", time.Since(start), err == nil)
	if err != nil {
		return errs.New(errs.AdapterTransient, "engine.insertOne", err)
	}
	return nil
}

func (e *Engine) insertBatch(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	recs, err := e.cfg.Generator.GenerateBatch(ctx, n, e.cfg.TargetSize, defaultWorkerCount(e.cfg.BackendKind))
	if err != nil && len(recs) == 0 {
		return fmt.Errorf("generate batch: %w", err)
	}
	payloads := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		p, err := generator.CoerceForBackend(rec, e.cfg.BackendKind, e.cfg.TargetSize)
		if err != nil {
			continue
		}
		payloads = append(payloads, p)
	}
	start := time.Now()
	n2, err := e.cfg.Adapter.InsertBatch(ctx, payloads)
	avg := time.Duration(0)
	if n2 > 0 {
		avg = time.Since(start) / time.Duration(n2)
	}
	for i := 0; i < n2; i++ {
		e.record("insert", avg, true)
	}
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (e *Engine) updateRandom(ctx context.Context) error {
	key, err := e.cfg.Adapter.PickRandomKey(ctx)
	if err == backend.ErrEmptyContainer {
		return nil
	}
	if err != nil {
		return errs.New(errs.AdapterTransient, "engine.updateRandom.pick", err)
	}
	rec, err := e.cfg.Generator.GenerateOne(e.cfg.TargetSize, &key)
	if err != nil {
		return errs.New(errs.GeneratorError, "engine.updateRandom.generate", err)
	}
	payload, err := generator.CoerceForBackend(rec, e.cfg.BackendKind, e.cfg.TargetSize)
	if err != nil {
		return errs.New(errs.GeneratorError, "engine.updateRandom.coerce", err)
	}
	start := time.Now()
	err = e.cfg.Adapter.UpdateByKey(ctx, key, payload)
	e.record("update", time.Since(start), err == nil)
	if err != nil {
		return errs.New(errs.AdapterTransient, "engine.updateRandom", err)
	}
	return nil
}

func (e *Engine) deleteRandom(ctx context.Context) error {
	key, err := e.cfg.Adapter.PickRandomKey(ctx)
	if err == backend.ErrEmptyContainer {
		return nil
	}
	if err != nil {
		return errs.New(errs.AdapterTransient, "engine.deleteRandom.pick", err)
	}
	start := time.Now()
	err = e.cfg.Adapter.DeleteByKey(ctx, key)
	e.record("delete", time.Since(start), err == nil)
	if err != nil {
		return errs.New(errs.AdapterTransient, "engine.deleteRandom", err)
	}
	return nil
}

func (e *Engine) record(opType string, latency time.Duration, success bool) {
	if e.cfg.OpLog != nil {
		e.cfg.OpLog.Record(opType, latency, success)
	}
}

// calculateOptimalBatchSize ports, unchanged in semantics, the original
// system's calculate_optimal_batch_size: an adaptive sizer that
// guarantees monotone progress toward target without overshoot.
func calculateOptimalBatchSize(target, current int64, maxBatch int, upper, lower float64) int64 {
	diff := target - current
	if diff <= 0 {
		return 1
	}
	initial := int64(float64(diff) * upper)
	initial = clamp(1, int64(maxBatch), initial)

	if float64(initial) < float64(diff)*lower {
		initial = int64(float64(diff) * lower)
	}
	return clamp(1, int64(maxBatch), initial)
}

func clamp(lo, hi, v int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// defaultWorkerCount mirrors the original system's per-backend
// concurrency defaults for Phase A batch synthesis (4 for most backends,
// scaling up for backends that can absorb more concurrent writers).
func defaultWorkerCount(kind generator.BackendKind) int {
	switch kind {
	case generator.KindDocumentDB:
		return 16
	case generator.KindWideColumn:
		return 32
	default:
		return 4
	}
}
