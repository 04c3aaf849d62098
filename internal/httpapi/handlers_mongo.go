package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/backend/mongoadapter"
	"github.com/minghe/crudloader/internal/generator"
)

func (m *Manager) mongoRoutes(r chi.Router) {
	r.Post("/start_loader", m.startMongoLoader)
	r.Post("/stop_loader", m.stopMongoLoader)
	r.Get("/count", m.countMongo)
	r.Delete("/delete_collection", m.deleteMongoCollection)
	r.Delete("/delete_database", m.deleteMongoDatabase)
}

func mongoConnectionString(body map[string]any) string {
	if url := getString(body, "atlas_url", ""); url != "" {
		return url
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d",
		getString(body, "username", ""),
		getString(body, "password", ""),
		getString(body, "ip", "localhost"),
		int(getInt64(body, "port", 27017)),
	)
}

func (m *Manager) startMongoLoader(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}

	if loaderID := getString(body, "loader_id", ""); loaderID != "" {
		out := m.startLoader(r.Context(), backend.KindMongo, "", "", "", loaderID, nil, nil, nil)
		writeJSON(w, out.status, out.body)
		return
	}

	checklist := []string{"ip", "port", "username", "password", "database_name", "collection_name", "target_num_docs"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}

	database := getString(body, "database_name", "")
	collection := getString(body, "collection_name", "")
	container := database + "/" + collection
	target := getInt64(body, "target_num_docs", 0)
	buffer := getInt64(body, "num_buffer", 500)
	docSize := int(getInt64(body, "document_size", 1024))
	wallClock := getWallClock(body, "time_for_crud_in_mins")

	out := m.startLoader(r.Context(), backend.KindMongo, container, database, collection, "",
		[]byte(fmt.Sprintf("target=%d buffer=%d size=%d", target, buffer, docSize)),
		func(ctx context.Context) (backend.Adapter, error) {
			return mongoadapter.New(ctx, mongoadapter.Config{
				ConnectionString: mongoConnectionString(body),
				DatabaseName:     database,
				CollectionName:   collection,
				PoolSize:         10,
			})
		},
		defaultEngineRunner(m.Generator, generator.KindDocumentDB, docSize, target, buffer, wallClock),
	)
	writeJSON(w, out.status, out.body)
}

func (m *Manager) stopMongoLoader(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"loader_id"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	out := m.stopLoader(r.Context(), getString(body, "loader_id", ""))
	writeJSON(w, out.status, out.body)
}

func (m *Manager) countMongo(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"ip", "port", "username", "password", "database_name", "collection_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	a, err := mongoadapter.New(ctx, mongoadapter.Config{
		ConnectionString: mongoConnectionString(body),
		DatabaseName:     getString(body, "database_name", ""),
		CollectionName:   getString(body, "collection_name", ""),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	defer a.Close(ctx)
	c, err := a.Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": c})
}

func (m *Manager) deleteMongoCollection(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"ip", "port", "username", "password", "database_name", "collection_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx := r.Context()
	a, err := mongoadapter.New(ctx, mongoadapter.Config{
		ConnectionString: mongoConnectionString(body),
		DatabaseName:     getString(body, "database_name", ""),
		CollectionName:   getString(body, "collection_name", ""),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	defer a.Close(ctx)
	if err := a.DropContainer(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": fmt.Sprintf("SUCCESS dropped collection %s", getString(body, "collection_name", ""))})
}

func (m *Manager) deleteMongoDatabase(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"ip", "port", "username", "password", "database_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx := r.Context()
	a, err := mongoadapter.New(ctx, mongoadapter.Config{
		ConnectionString: mongoConnectionString(body),
		DatabaseName:     getString(body, "database_name", ""),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	defer a.Close(ctx)
	if err := a.DropDatabase(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": fmt.Sprintf("SUCCESS dropped database %s", getString(body, "database_name", ""))})
}
