// Package telemetry adapts the teacher's YCSB-style per-operation
// latency logger into the Operation Log: a record of the engines'
// mutating adapter calls (insert, update, delete) across all four
// backends, instead of MongoDB inserts alone. Count and PickRandomKey
// calls are not recorded.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// Operation is a single adapter call with its outcome and latency.
type Operation struct {
	LoaderID string
	Backend  string
	Type     string // insert | update | delete
	LatencyUs int64
	Success  bool
}

// OperationLog accumulates Operations for one loader and periodically
// flushes a YCSB-style summary line to a file.
type OperationLog struct {
	file         *os.File
	mu           sync.Mutex
	operations   []Operation
	startTime    time.Time
	lastLogTime  time.Time
	lastOpCount  int64
	loaderID     string
	backend      string
}

// New creates an Operation Log backed by filePath, tagged with loaderID
// and backend for the header and every summary line.
func New(filePath, loaderID, backend string) (*OperationLog, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create log file: %w", err)
	}

	l := &OperationLog{
		file:        file,
		startTime:   time.Now(),
		lastLogTime: time.Now(),
		operations:  make([]Operation, 0, 4096),
		loaderID:    loaderID,
		backend:     backend,
	}
	l.writeHeader()
	return l, nil
}

func (l *OperationLog) writeHeader() {
	fmt.Fprintf(l.file, "Operation Log\n")
	fmt.Fprintf(l.file, "Loader: %s (%s)\n", l.loaderID, l.backend)
	fmt.Fprintf(l.file, "Start time: %s\n\n", l.startTime.Format(time.RFC3339))
}

// Record records one adapter call's outcome.
func (l *OperationLog) Record(opType string, latency time.Duration, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.operations = append(l.operations, Operation{
		LoaderID:  l.loaderID,
		Backend:   l.backend,
		Type:      opType,
		LatencyUs: latency.Microseconds(),
		Success:   success,
	})
}

// StartPeriodicLogging flushes a summary line every 10 seconds until ctx
// is canceled.
func (l *OperationLog) StartPeriodicLogging(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = l.WriteStats()
		}
	}
}

// WriteStats writes one summary line grouping operations by type, with
// percentile latencies computed via montanaflynn/stats.
func (l *OperationLog) WriteStats() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.startTime)
	totalOps := int64(len(l.operations))
	if totalOps == 0 {
		return nil
	}

	opsSinceLastLog := totalOps - l.lastOpCount
	periodDuration := now.Sub(l.lastLogTime).Seconds()
	if periodDuration < 1 {
		periodDuration = 1
	}
	currentOpsPerSec := float64(opsSinceLastLog) / periodDuration

	timestamp := now.Format("[2006/01/02 15:04:05.000]")

	opsByType := make(map[string][]Operation)
	for _, op := range l.operations {
		opsByType[op.Type] = append(opsByType[op.Type], op)
	}

	line := fmt.Sprintf("%s [info] [%s/%s] %d sec: %d operations; %.1f current ops/sec",
		timestamp, l.backend, l.loaderID, int64(elapsed.Seconds()), totalOps, currentOpsPerSec)

	var typeNames []string
	for opType := range opsByType {
		typeNames = append(typeNames, opType)
	}
	sort.Strings(typeNames)

	for _, opType := range typeNames {
		line += " " + formatOperationStats(opType, opsByType[opType])
	}

	if _, err := l.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("telemetry: write stats: %w", err)
	}

	l.lastLogTime = now
	l.lastOpCount = totalOps
	return l.file.Sync()
}

// formatOperationStats summarizes one operation type's latencies using
// montanaflynn/stats.Percentile in place of the teacher's hand-rolled
// sort-and-index percentile calculation.
func formatOperationStats(opType string, ops []Operation) string {
	if len(ops) == 0 {
		return fmt.Sprintf("[%s: Count=0]", opType)
	}

	latencies := make(stats.Float64Data, len(ops))
	var total float64
	for i, op := range ops {
		latencies[i] = float64(op.LatencyUs)
		total += float64(op.LatencyUs)
	}

	avg := total / float64(len(ops))
	min, _ := latencies.Min()
	max, _ := latencies.Max()
	p90, _ := latencies.Percentile(90)
	p99, _ := latencies.Percentile(99)
	p999, _ := latencies.Percentile(99.9)
	p9999, _ := latencies.Percentile(99.99)

	return fmt.Sprintf("[%s: Count=%d, Max=%.0f, Min=%.0f, Avg=%.2f, 90=%.0f, 99=%.0f, 99.9=%.0f, 99.99=%.0f]",
		opType, len(ops), max, min, avg, p90, p99, p999, p9999)
}

// Close flushes final stats and closes the log file.
func (l *OperationLog) Close() error {
	_ = l.WriteStats()
	return l.file.Close()
}
