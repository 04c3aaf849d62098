// Package registry implements the Loader Registry: ID issuance, durable
// status recording, uniqueness enforcement, and pause/resume/stop
// lifecycle management.
//
// Re-architected per the spec's design notes away from the original
// system's scan-the-collection-on-every-request pattern
// (dataloading_server.py's loader_collection scans) into a single
// mutex-guarded in-memory index backed by a Store for durability — the
// *semantics* (one running loader per container, 409 on conflict,
// resume-by-known-id) are unchanged.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/minghe/crudloader/internal/errs"
)

// Status is a loader's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// Record is the durable, backend-agnostic loader entity.
type Record struct {
	LoaderID       string          `json:"loader_id" bson:"loader_id"`
	BackendKind    string          `json:"backend_kind" bson:"backend_kind"`
	Container      string          `json:"container" bson:"container"`
	Database       string          `json:"database" bson:"database"`
	Collection     string          `json:"collection" bson:"collection"`
	Status         Status          `json:"status" bson:"status"`
	ConfigDigest   []byte          `json:"-" bson:"config_digest"`
}

// containerKey identifies a unique (backend_kind, container) pair for
// the uniqueness guard.
type containerKey struct {
	backendKind string
	container   string
}

// CancelHandle is the one-shot cooperative cancellation token the CRUD
// Loop Engine polls between iterations. It maps the original system's
// mutable-boolean-per-backend field onto a small explicit state enum, as
// the design notes direct.
type CancelHandle struct {
	mu    sync.Mutex
	state Status
}

// State returns the handle's current state.
func (h *CancelHandle) State() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Pause transitions the handle to paused.
func (h *CancelHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StatusPaused
}

// Stop transitions the handle to stopped. Terminal: once stopped, a
// handle never resumes running.
func (h *CancelHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StatusStopped
}

// Fail transitions the handle to failed. Terminal, same as Stop.
func (h *CancelHandle) Fail() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StatusFailed
}

// ShouldStop reports whether the engine loop driving this handle should
// exit at the next iteration boundary.
func (h *CancelHandle) ShouldStop() bool {
	s := h.State()
	return s == StatusStopped || s == StatusFailed
}

// Store is the durable persistence side of the registry (see
// internal/registry/store.go for the Mongo-backed implementation).
type Store interface {
	Save(ctx context.Context, rec Record) error
	UpdateStatus(ctx context.Context, loaderID string, status Status) error
	Get(ctx context.Context, loaderID string) (Record, bool, error)
	List(ctx context.Context) ([]Record, error)
}

// Registry is the in-memory index, backed by a Store, that the HTTP
// Control Surface drives.
type Registry struct {
	mu       sync.Mutex
	store    Store
	handles  map[string]*CancelHandle
	running  map[containerKey]string // container -> loader_id currently running
}

// New returns a Registry backed by store.
func New(store Store) *Registry {
	return &Registry{
		store:   store,
		handles: make(map[string]*CancelHandle),
		running: make(map[containerKey]string),
	}
}

// Start allocates a new loader_id and registers it as running, rejecting
// the request if a loader is already running on the same
// (backend_kind, container) pair. The uniqueness guard and the durable
// write happen under the same mutex acquisition, per the spec's
// atomicity requirement.
func (r *Registry) Start(ctx context.Context, backendKind, container, database, collection string, configDigest []byte) (*Record, *CancelHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := containerKey{backendKind: backendKind, container: container}
	if existingID, ok := r.running[key]; ok {
		existing, found, err := r.store.Get(ctx, existingID)
		if err == nil && found {
			return &existing, nil, errs.New(errs.ResourceConflict, "registry.Start", fmt.Errorf("loader %s already running on %s/%s", existingID, backendKind, container))
		}
	}

	loaderID := uuid.NewString()
	rec := Record{
		LoaderID:     loaderID,
		BackendKind:  backendKind,
		Container:    container,
		Database:     database,
		Collection:   collection,
		Status:       StatusRunning,
		ConfigDigest: configDigest,
	}
	if err := r.store.Save(ctx, rec); err != nil {
		return nil, nil, errs.New(errs.AdapterFatal, "registry.Start", err)
	}

	handle := &CancelHandle{state: StatusRunning}
	r.handles[loaderID] = handle
	r.running[key] = loaderID

	return &rec, handle, nil
}

// Resume reactivates a known loader_id. Per spec §9's design decision,
// this system models pause/resume at the handle level for a loader that
// is still in-memory and `paused`; a loader whose persisted status is
// already `running` resumes idempotently. A loader whose status is
// `stopped` or `failed` is terminal and resume returns ResourceConflict
// — a fresh loader_id is required instead, matching end-to-end scenario
// 4 in the spec's testable properties.
func (r *Registry) Resume(ctx context.Context, loaderID string) (*Record, *CancelHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, found, err := r.store.Get(ctx, loaderID)
	if err != nil {
		return nil, nil, errs.New(errs.AdapterFatal, "registry.Resume", err)
	}
	if !found {
		return nil, nil, errs.New(errs.ResourceConflict, "registry.Resume", fmt.Errorf("no loader found with ID %s", loaderID))
	}

	switch rec.Status {
	case StatusRunning:
		handle := r.handles[loaderID]
		return &rec, handle, nil
	case StatusPaused:
		handle, ok := r.handles[loaderID]
		if !ok {
			return nil, nil, errs.New(errs.ResourceConflict, "registry.Resume", fmt.Errorf("loader %s has no live handle to resume", loaderID))
		}
		handle.mu.Lock()
		handle.state = StatusRunning
		handle.mu.Unlock()
		rec.Status = StatusRunning
		if err := r.store.UpdateStatus(ctx, loaderID, StatusRunning); err != nil {
			return nil, nil, errs.New(errs.AdapterFatal, "registry.Resume", err)
		}
		r.running[containerKey{backendKind: rec.BackendKind, container: rec.Container}] = loaderID
		return &rec, handle, nil
	default:
		return nil, nil, errs.New(errs.ResourceConflict, "registry.Resume", fmt.Errorf("loader %s is %s, a fresh loader_id is required", loaderID, rec.Status))
	}
}

// Pause flips loaderID's handle to paused and persists the status.
func (r *Registry) Pause(ctx context.Context, loaderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.handles[loaderID]
	if !ok {
		return errs.New(errs.ResourceConflict, "registry.Pause", fmt.Errorf("no loader found with ID %s", loaderID))
	}
	handle.Pause()
	return r.store.UpdateStatus(ctx, loaderID, StatusPaused)
}

// Stop flips loaderID's handle to stopped and persists the status.
// Idempotent: stopping an already-stopped loader is a no-op success.
func (r *Registry) Stop(ctx context.Context, loaderID string) (found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, found, err := r.store.Get(ctx, loaderID)
	if err != nil {
		return false, errs.New(errs.AdapterFatal, "registry.Stop", err)
	}
	if !found {
		return false, nil
	}

	if handle, ok := r.handles[loaderID]; ok {
		handle.Stop()
	}
	if err := r.store.UpdateStatus(ctx, loaderID, StatusStopped); err != nil {
		return true, errs.New(errs.AdapterFatal, "registry.Stop", err)
	}

	key := containerKey{backendKind: rec.BackendKind, container: rec.Container}
	if r.running[key] == loaderID {
		delete(r.running, key)
	}
	return true, nil
}

// Fail transitions loaderID to failed — called by the HTTP control
// surface's per-loader goroutine when the engine run returns an error;
// no HTTP route calls it.
func (r *Registry) Fail(ctx context.Context, loaderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[loaderID]; ok {
		handle.Fail()
	}
	rec, found, err := r.store.Get(ctx, loaderID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := r.store.UpdateStatus(ctx, loaderID, StatusFailed); err != nil {
		return err
	}
	key := containerKey{backendKind: rec.BackendKind, container: rec.Container}
	if r.running[key] == loaderID {
		delete(r.running, key)
	}
	return nil
}

// Get returns the durable record for loaderID.
func (r *Registry) Get(ctx context.Context, loaderID string) (Record, bool, error) {
	return r.store.Get(ctx, loaderID)
}

// List returns every durable loader record.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	return r.store.List(ctx)
}

// RunningOn reports the loader_id currently running on (backendKind,
// container), if any.
func (r *Registry) RunningOn(backendKind, container string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.running[containerKey{backendKind: backendKind, container: container}]
	return id, ok
}

// Handle returns the in-memory cancellation handle for loaderID, if the
// process that created it is still alive (handles do not survive a
// control-plane restart — see DESIGN.md's Open Question).
func (r *Registry) Handle(loaderID string) (*CancelHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[loaderID]
	return h, ok
}
