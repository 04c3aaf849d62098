package generator

import (
	"context"
	"strconv"
	"testing"

	"github.com/minghe/crudloader/internal/model"
)

func TestGenerateBatchCount(t *testing.T) {
	g := New(model.NewSeededTemplate(11))
	recs, err := g.GenerateBatch(context.Background(), 25, 1024, 4)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(recs) != 25 {
		t.Fatalf("got %d records, want 25", len(recs))
	}
}

func TestGenerateBatchZero(t *testing.T) {
	g := New(model.NewSeededTemplate(11))
	recs, err := g.GenerateBatch(context.Background(), 0, 1024, 4)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records, want 0", len(recs))
	}
}

func TestGenerateBatchCancellation(t *testing.T) {
	g := New(model.NewSeededTemplate(11))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.GenerateBatch(ctx, 50, 1024, 4)
	if err == nil {
		t.Fatal("expected error on pre-canceled context")
	}
}

func TestCoerceForBackendRoundTrip(t *testing.T) {
	tpl := model.NewSeededTemplate(99)
	targetSize := 2048
	rec, err := tpl.Synthesize(targetSize, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	coerced, err := CoerceForBackend(rec, KindWideColumn, targetSize)
	if err != nil {
		t.Fatalf("CoerceForBackend: %v", err)
	}

	price, ok := coerced["price"].(string)
	if !ok {
		t.Fatalf("expected price to be coerced to string, got %T", coerced["price"])
	}
	if _, err := strconv.ParseFloat(price, 64); err != nil {
		t.Errorf("coerced price %q does not round-trip as a float: %v", price, err)
	}

	avg, ok := coerced["avg_rating"].(string)
	if !ok {
		t.Fatalf("expected avg_rating to be coerced to string, got %T", coerced["avg_rating"])
	}
	if _, err := strconv.ParseFloat(avg, 64); err != nil {
		t.Errorf("coerced avg_rating %q does not round-trip: %v", avg, err)
	}
}

func TestCoerceForBackendNonWideColumnIsNoop(t *testing.T) {
	tpl := model.NewSeededTemplate(5)
	rec, err := tpl.Synthesize(1024, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	coerced, err := CoerceForBackend(rec, KindDocumentDB, 1024)
	if err != nil {
		t.Fatalf("CoerceForBackend: %v", err)
	}
	if _, ok := coerced["price"].(float64); !ok {
		t.Errorf("expected price to remain numeric for document-db, got %T", coerced["price"])
	}
}
