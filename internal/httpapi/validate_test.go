package httpapi

import "testing"

func TestRequireFieldsAllPresent(t *testing.T) {
	body := map[string]any{"database_name": "D", "collection_name": "C", "target_num_docs": 100.0}
	if missing, ok := requireFields(body, []string{"database_name", "collection_name", "target_num_docs"}); !ok {
		t.Fatalf("expected ok, got missing=%q", missing)
	}
}

func TestRequireFieldsReportsFirstMissing(t *testing.T) {
	body := map[string]any{"database_name": "D"}
	missing, ok := requireFields(body, []string{"database_name", "collection_name", "target_num_docs"})
	if ok {
		t.Fatal("expected not ok")
	}
	if missing != "collection_name" {
		t.Fatalf("got missing=%q, want collection_name", missing)
	}
}

func TestRequireFieldsRejectsEmptyString(t *testing.T) {
	body := map[string]any{"loader_id": ""}
	if _, ok := requireFields(body, []string{"loader_id"}); ok {
		t.Fatal("expected empty string to count as missing")
	}
}

func TestGetInt64FromJSONNumber(t *testing.T) {
	body := map[string]any{"target_num_docs": 250.0}
	if got := getInt64(body, "target_num_docs", 0); got != 250 {
		t.Fatalf("got %d, want 250", got)
	}
}

func TestGetInt64Default(t *testing.T) {
	body := map[string]any{}
	if got := getInt64(body, "num_buffer", 500); got != 500 {
		t.Fatalf("got %d, want default 500", got)
	}
}

func TestGetWallClockZeroIsUnbounded(t *testing.T) {
	body := map[string]any{"time_for_crud_in_mins": 0.0}
	if d := getWallClock(body, "time_for_crud_in_mins"); d != 0 {
		t.Fatalf("got %v, want 0", d)
	}
}
