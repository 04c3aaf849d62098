// Package generator wraps the document template with concurrent batch
// synthesis and backend-specific post-processing.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/minghe/crudloader/internal/model"
)

// BackendKind identifies which coercion rules apply to a synthesized record.
type BackendKind string

const (
	KindDocumentDB  BackendKind = "document-db"
	KindRelationalDB BackendKind = "relational-db"
	KindWideColumn  BackendKind = "wide-column"
	KindObjectStore BackendKind = "object-store"
)

// Stats are the cumulative counters for a Generator's lifetime.
type Stats struct {
	Synthesized int64
	Failed      int64
}

// Generator produces Records of a fixed target size via a Template,
// generalizing the teacher's errgroup-based worker pool from a
// byte-budget stop condition to an n-count stop condition.
type Generator struct {
	template *model.Template

	synthesized atomic.Int64
	failed      atomic.Int64
}

// New returns a Generator backed by tpl. tpl must not be nil.
func New(tpl *model.Template) *Generator {
	return &Generator{template: tpl}
}

// GenerateOne synthesizes a single record of sizeBytes. If key is non-nil
// the record keeps that identity (used by update_by_key replacements).
func (g *Generator) GenerateOne(sizeBytes int, key *string) (*model.Record, error) {
	rec, err := g.template.Synthesize(sizeBytes, key)
	if err != nil {
		g.failed.Add(1)
		return nil, fmt.Errorf("generator: generate one: %w", err)
	}
	g.synthesized.Add(1)
	return rec, nil
}

// GenerateBatch synthesizes n records of sizeBytes using up to
// workerCount parallel workers. Ordering of the returned slice is not
// guaranteed. A single worker's failure is counted and its slot is
// dropped — the returned slice may have fewer than n elements.
func (g *Generator) GenerateBatch(ctx context.Context, n, sizeBytes, workerCount int) ([]*model.Record, error) {
	if n <= 0 {
		return nil, nil
	}
	if workerCount < 1 {
		workerCount = 1
	}

	type result struct {
		rec *model.Record
		err error
	}

	jobs := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	results := make(chan result, n)

	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < workerCount; w++ {
		eg.Go(func() error {
			for range jobs {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				default:
				}
				rec, err := g.template.Synthesize(sizeBytes, nil)
				results <- result{rec: rec, err: err}
			}
			return nil
		})
	}

	go func() {
		_ = eg.Wait()
		close(results)
	}()

	out := make([]*model.Record, 0, n)
	for r := range results {
		if r.err != nil {
			g.failed.Add(1)
			continue
		}
		g.synthesized.Add(1)
		out = append(out, r.rec)
	}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}

// Stats returns a snapshot of cumulative synthesis counters.
func (g *Generator) Stats() Stats {
	return Stats{
		Synthesized: g.synthesized.Load(),
		Failed:      g.failed.Load(),
	}
}

// CoerceForBackend applies backend-specific reshaping to rec. Only the
// wide-column backend currently requires reshaping: every floating-point
// scalar is replaced, recursively, by its decimal string rendering, and
// the padding field is right-trimmed by any resulting overshoot against
// the original target size.
func CoerceForBackend(rec *model.Record, kind BackendKind, targetSize int) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("generator: coerce marshal: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("generator: coerce unmarshal: %w", err)
	}

	if kind != KindWideColumn {
		return generic, nil
	}

	coerced := floatToStr(generic).(map[string]any)

	coercedBytes, err := json.Marshal(coerced)
	if err != nil {
		return nil, fmt.Errorf("generator: coerce re-marshal: %w", err)
	}
	if overshoot := len(coercedBytes) - targetSize; overshoot > 0 {
		padding, _ := coerced["padding"].(string)
		if overshoot > len(padding) {
			overshoot = len(padding)
		}
		coerced["padding"] = padding[:len(padding)-overshoot]
	}
	return coerced, nil
}

// floatToStr recursively walks a generic JSON value, converting every
// float64 scalar to its decimal string rendering. Ported from the
// original system's float_to_str helper, which performed the same
// conversion for the wide-column backend's refusal to accept floats.
func floatToStr(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = floatToStr(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = floatToStr(val)
		}
		return out
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return v
	}
}
