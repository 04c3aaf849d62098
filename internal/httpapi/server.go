// Package httpapi is the thin HTTP control surface that translates
// requests into registry + engine actions. Routing is built with
// github.com/go-chi/chi/v5; route semantics (checklist 422, 409 on
// duplicate running loader, resume-by-id, the asymmetry between
// stopping an unknown loader_id (200) and starting one (409)) are
// grounded directly on original_source/Server/dataloading_server.py.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/engine"
	"github.com/minghe/crudloader/internal/errs"
	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/registry"
	"github.com/minghe/crudloader/internal/telemetry"
)

// Manager holds the shared dependencies every backend's handlers draw
// on: the process-wide registry, the shared generator, and a place to
// put per-loader operation logs.
type Manager struct {
	Registry  *registry.Registry
	Generator *generator.Generator
	Logger    zerolog.Logger
	OpLogDir  string
}

// NewRouter builds the full HTTP control surface: per-backend route
// groups plus the generic /loaders surface and root greeting.
func NewRouter(m *Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Welcome to the loader control plane"))
	})

	r.Get("/loaders", m.listLoaders)
	r.Get("/loaders/{loaderID}", m.getLoader)

	r.Route("/mongo", m.mongoRoutes)
	r.Route("/mysql", m.mysqlRoutes)
	r.Route("/dynamo", m.dynamoRoutes)
	r.Route("/s3", m.s3Routes)

	return r
}

func (m *Manager) listLoaders(w http.ResponseWriter, r *http.Request) {
	recs, err := m.Registry.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (m *Manager) getLoader(w http.ResponseWriter, r *http.Request) {
	loaderID := chi.URLParam(r, "loaderID")
	rec, found, err := m.Registry.Get(r.Context(), loaderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"response": fmt.Sprintf("No loader found with ID %s", loaderID)})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// startOutcome is the shared response shape start handlers build,
// matching the spec's start response body contracts exactly.
type startOutcome struct {
	status int
	body   map[string]any
}

// startLoader runs the registry guard + persist + spawn-engine sequence
// common to every backend's start_loader route. adapterFactory builds
// the backend-specific adapter; engineRunner is handed the adapter, the
// cancellation handle, and an operation log, and is responsible for
// calling engine.Run (or ObjectStoreEngine.Run) to completion.
func (m *Manager) startLoader(
	ctx context.Context,
	backendKind backend.Kind,
	container, database, collection string,
	resumeLoaderID string,
	configDigest []byte,
	adapterFactory func(ctx context.Context) (backend.Adapter, error),
	engineRunner func(ctx context.Context, adapter backend.Adapter, handle *registry.CancelHandle, opLog *telemetry.OperationLog) error,
) startOutcome {
	if resumeLoaderID != "" {
		rec, handle, err := m.Registry.Resume(ctx, resumeLoaderID)
		if err != nil {
			if kind, ok := errs.KindOf(err); ok && kind == errs.ResourceConflict {
				return startOutcome{status: http.StatusConflict, body: map[string]any{
					"ERROR":    err.Error(),
					"loader_id": resumeLoaderID,
					"status":   "failed",
				}}
			}
			return startOutcome{status: http.StatusInternalServerError, body: map[string]any{"error": err.Error()}}
		}
		_ = handle
		return startOutcome{status: http.StatusOK, body: map[string]any{
			"loader_id": rec.LoaderID,
			"status":    string(rec.Status),
			"database":  rec.Database,
			"collection": rec.Collection,
		}}
	}

	if existingID, ok := m.Registry.RunningOn(string(backendKind), container); ok {
		return startOutcome{status: http.StatusConflict, body: map[string]any{
			"ERROR":     "a loader is already running on this container",
			"loader_id": existingID,
			"container": container,
			"status":    "failed",
		}}
	}

	adapter, err := adapterFactory(ctx)
	if err != nil {
		return startOutcome{status: http.StatusInternalServerError, body: map[string]any{"error": err.Error()}}
	}
	if err := adapter.InitializeContainer(ctx); err != nil {
		return startOutcome{status: http.StatusInternalServerError, body: map[string]any{"error": err.Error()}}
	}

	rec, handle, err := m.Registry.Start(ctx, string(backendKind), container, database, collection, configDigest)
	if err != nil {
		if kind, ok := errs.KindOf(err); ok && kind == errs.ResourceConflict {
			return startOutcome{status: http.StatusConflict, body: map[string]any{
				"ERROR":     err.Error(),
				"loader_id": rec.LoaderID,
				"container": container,
				"status":    "failed",
			}}
		}
		return startOutcome{status: http.StatusInternalServerError, body: map[string]any{"error": err.Error()}}
	}

	var opLog *telemetry.OperationLog
	if m.OpLogDir != "" {
		path := fmt.Sprintf("%s/%s.oplog", m.OpLogDir, rec.LoaderID)
		if l, err := telemetry.New(path, rec.LoaderID, string(backendKind)); err == nil {
			opLog = l
		}
	}

	loaderID := rec.LoaderID
	go func() {
		runCtx := context.Background()
		logger := m.Logger.With().Str("loader_id", loaderID).Str("backend_kind", string(backendKind)).Str("container", container).Logger()
		logger.Info().Msg("loader started")

		if opLog != nil {
			go opLog.StartPeriodicLogging(runCtx)
		}

		err := engineRunner(runCtx, adapter, handle, opLog)
		_ = adapter.Close(runCtx)
		if opLog != nil {
			_ = opLog.Close()
		}

		if err != nil {
			logger.Error().Err(err).Msg("loader failed")
			_ = m.Registry.Fail(runCtx, loaderID)
			return
		}
		// A normal exit (stop request or wall-clock budget) ends stopped;
		// Stop is idempotent when a stop request already recorded it.
		_, _ = m.Registry.Stop(runCtx, loaderID)
		logger.Info().Msg("loader exited")
	}()

	return startOutcome{status: http.StatusOK, body: map[string]any{
		"loader_id":  rec.LoaderID,
		"status":     string(rec.Status),
		"database":   rec.Database,
		"collection": rec.Collection,
	}}
}

// stopLoader implements the spec's stop_loader semantics exactly,
// including the asymmetry with start: stopping an unknown loader_id
// returns 200 with a "no loader found" body, not 409.
func (m *Manager) stopLoader(ctx context.Context, loaderID string) startOutcome {
	rec, found, err := m.Registry.Get(ctx, loaderID)
	if err != nil {
		return startOutcome{status: http.StatusInternalServerError, body: map[string]any{"error": err.Error()}}
	}
	if !found {
		return startOutcome{status: http.StatusOK, body: map[string]any{
			"response": fmt.Sprintf("No loader found with ID %s", loaderID),
		}}
	}
	if rec.Status != registry.StatusRunning && rec.Status != registry.StatusPaused {
		return startOutcome{status: http.StatusOK, body: map[string]any{
			"response": fmt.Sprintf("Loader %s is not running", loaderID),
		}}
	}

	if _, err := m.Registry.Stop(ctx, loaderID); err != nil {
		return startOutcome{status: http.StatusInternalServerError, body: map[string]any{"error": err.Error()}}
	}
	return startOutcome{status: http.StatusOK, body: map[string]any{
		"response":   "stopped",
		"loader_id":  loaderID,
		"database":   rec.Database,
		"collection": rec.Collection,
		"status":     "stopped",
	}}
}

// defaultEngineRunner wires a plain engine.Engine (document-db,
// relational-db, wide-column) for the given adapter/config.
func defaultEngineRunner(gen *generator.Generator, kind generator.BackendKind, targetSize int, target, buffer int64, wallClock time.Duration) func(ctx context.Context, adapter backend.Adapter, handle *registry.CancelHandle, opLog *telemetry.OperationLog) error {
	return func(ctx context.Context, adapter backend.Adapter, handle *registry.CancelHandle, opLog *telemetry.OperationLog) error {
		e := engine.New(engine.Config{
			Adapter:     adapter,
			Generator:   gen,
			Handle:      handle,
			OpLog:       opLog,
			BackendKind: kind,
			TargetSize:  targetSize,
			Target:      target,
			BufferWidth: buffer,
			WallClock:   wallClock,
		})
		return e.Run(ctx)
	}
}
