package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/backend/mysqladapter"
	"github.com/minghe/crudloader/internal/engine"
	"github.com/minghe/crudloader/internal/generator"
)

func (m *Manager) mysqlRoutes(r chi.Router) {
	r.Post("/start_loader", m.startMySQLLoader)
	r.Post("/stop_loader", m.stopMySQLLoader)
	r.Get("/count", m.countMySQL)
	r.Delete("/delete_table", m.deleteMySQLTable)
	r.Post("/restore", m.restoreMySQL)
}

func mysqlDSN(body map[string]any) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		getString(body, "username", ""),
		getString(body, "password", ""),
		getString(body, "host", "localhost"),
		int(getInt64(body, "port", 3306)),
		getString(body, "database_name", ""),
	)
}

func (m *Manager) startMySQLLoader(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}

	if loaderID := getString(body, "loader_id", ""); loaderID != "" {
		out := m.startLoader(r.Context(), backend.KindMySQL, "", "", "", loaderID, nil, nil, nil)
		writeJSON(w, out.status, out.body)
		return
	}

	checklist := []string{"host", "port", "username", "password", "database_name", "table_name", "table_columns"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}

	database := getString(body, "database_name", "")
	table := getString(body, "table_name", "")
	container := database + "/" + table
	target := getInt64(body, "target_num_docs", 0)
	buffer := getInt64(body, "num_buffer", 500)
	docSize := int(getInt64(body, "document_size", 1024))
	wallClock := getWallClock(body, "time_for_crud_in_mins")

	out := m.startLoader(r.Context(), backend.KindMySQL, container, database, table, "",
		[]byte(fmt.Sprintf("target=%d buffer=%d size=%d", target, buffer, docSize)),
		func(ctx context.Context) (backend.Adapter, error) {
			return mysqladapter.New(mysqladapter.Config{
				DSN:      mysqlDSN(body),
				Database: database,
				Table:    table,
			})
		},
		defaultEngineRunner(m.Generator, generator.KindRelationalDB, docSize, target, buffer, wallClock),
	)
	writeJSON(w, out.status, out.body)
}

func (m *Manager) stopMySQLLoader(w http.ResponseWriter, r *http.Request) {
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

func (m *Manager) countMySQL(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"host", "port", "username", "password", "database_name", "table_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	a, err := mysqladapter.New(mysqladapter.Config{
		DSN:      mysqlDSN(body),
		Database: getString(body, "database_name", ""),
		Table:    getString(body, "table_name", ""),
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

func (m *Manager) deleteMySQLTable(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"host", "port", "username", "password", "database_name", "table_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx := r.Context()
	a, err := mysqladapter.New(mysqladapter.Config{
		DSN:      mysqlDSN(body),
		Database: getString(body, "database_name", ""),
		Table:    getString(body, "table_name", ""),
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
	writeJSON(w, http.StatusOK, map[string]any{"response": fmt.Sprintf("SUCCESS dropped table %s", getString(body, "table_name", ""))})
}

// restoreMySQL re-converges a table to a specified population without
// allocating a new loader_id, matching restore_mysql_table's role as a
// one-shot reconciliation rather than a steady-state loader.
func (m *Manager) restoreMySQL(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"host", "port", "username", "password", "database_name", "table_name", "target_num_docs"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}

	ctx := r.Context()
	table := getString(body, "table_name", "")
	a, err := mysqladapter.New(mysqladapter.Config{
		DSN:      mysqlDSN(body),
		Database: getString(body, "database_name", ""),
		Table:    table,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	defer a.Close(ctx)

	target := getInt64(body, "target_num_docs", 0)
	docSize := int(getInt64(body, "document_size", 1024))
	err = engine.Reconcile(ctx, engine.Config{
		Adapter:     a,
		Generator:   m.Generator,
		BackendKind: generator.KindRelationalDB,
		TargetSize:  docSize,
		Target:      target,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": "restored", "table": table, "target_num_docs": target})
}
