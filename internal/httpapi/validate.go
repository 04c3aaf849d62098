package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// requireFields is a direct port of dataloading_server.py's
// check_request_body: every endpoint declares a required-field
// checklist; the first missing field is named in a 422 response body
// that also echoes the full checklist.
func requireFields(body map[string]any, checklist []string) (missing string, ok bool) {
	for _, field := range checklist {
		v, present := body[field]
		if !present || v == nil || v == "" {
			return field, false
		}
	}
	return "", true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("httpapi: decode request body: %w", err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// respondMissingField writes the spec's 422 checklist-body contract:
// the full required-field checklist plus the name of the first field
// found missing.
func respondMissingField(w http.ResponseWriter, checklist []string, missing string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"ERROR":     fmt.Sprintf("missing required field: %s", missing),
		"checklist": checklist,
		"missing":   missing,
	})
}

func getString(body map[string]any, key, def string) string {
	if v, ok := body[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func getInt64(body map[string]any, key string, def int64) int64 {
	if v, ok := body[key]; ok {
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int64:
			return n
		case int:
			return int64(n)
		}
	}
	return def
}

func getFloat(body map[string]any, key string, def float64) float64 {
	if v, ok := body[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

// getWallClock reads a minutes-denominated duration field, treating 0
// or absent as "no budget" (original system's float('inf') default).
func getWallClock(body map[string]any, key string) time.Duration {
	mins := getFloat(body, key, 0)
	if mins <= 0 {
		return 0
	}
	return time.Duration(mins * float64(time.Minute))
}
