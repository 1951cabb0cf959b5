// Package diagnostics provides per-run statistics for the check loop.
package diagnostics

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/dustin/go-humanize"
)

// Outcome classifies how a check cycle ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNetwork
	OutcomeDecode
	OutcomeNotFound
	OutcomeUnexpected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNetwork:
		return "network"
	case OutcomeDecode:
		return "decode"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Tracker records check statistics for the run summary.
type Tracker struct {
	mu sync.RWMutex

	source    string
	startTime time.Time

	// Cycle stats
	cycles         atomic.Uint64
	succeeded      atomic.Uint64
	networkErrs    atomic.Uint64
	decodeErrs     atomic.Uint64
	notFoundErrs   atomic.Uint64
	unexpectedErrs atomic.Uint64
	historyRows    atomic.Uint64
	historyErrs    atomic.Uint64

	// Timing
	fetchLatency ewma.MovingAverage
	lastFetchAt  time.Time
	lastOKAt     time.Time

	// Errors
	lastErr   error
	lastErrAt time.Time

	// Last observed address, for spotting changes between cycles
	lastIP    string
	ipChanges int
}

// New creates a tracker for a run against source.
func New(source string) *Tracker {
	return &Tracker{
		source:       source,
		startTime:    time.Now(),
		fetchLatency: ewma.NewMovingAverage(),
	}
}

// RecordFetch records the latency of one fetch attempt.
func (t *Tracker) RecordFetch(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchLatency.Add(float64(d))
	t.lastFetchAt = time.Now()
}

// RecordCycle records the end of a cycle.
func (t *Tracker) RecordCycle(outcome Outcome, err error) {
	t.cycles.Add(1)
	switch outcome {
	case OutcomeOK:
		t.succeeded.Add(1)
	case OutcomeNetwork:
		t.networkErrs.Add(1)
	case OutcomeDecode:
		t.decodeErrs.Add(1)
	case OutcomeNotFound:
		t.notFoundErrs.Add(1)
	default:
		t.unexpectedErrs.Add(1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if outcome == OutcomeOK {
		t.lastOKAt = time.Now()
	}
	if err != nil {
		t.lastErr = err
		t.lastErrAt = time.Now()
	}
}

// RecordIP records the address seen in a successful cycle and reports
// whether it differs from the previous one.
func (t *Tracker) RecordIP(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.lastIP != "" && ip != t.lastIP
	if changed {
		t.ipChanges++
	}
	t.lastIP = ip
	return changed
}

// RecordHistoryWrite records an attempt to append a history row.
func (t *Tracker) RecordHistoryWrite(err error) {
	if err != nil {
		t.historyErrs.Add(1)
		t.mu.Lock()
		t.lastErr = err
		t.lastErrAt = time.Now()
		t.mu.Unlock()
		return
	}
	t.historyRows.Add(1)
}

// Cycles returns the number of completed cycles.
func (t *Tracker) Cycles() uint64 { return t.cycles.Load() }

// Succeeded returns the number of cycles that produced a record.
func (t *Tracker) Succeeded() uint64 { return t.succeeded.Load() }

// Failed returns the number of cycles that ended with an error.
func (t *Tracker) Failed() uint64 {
	return t.networkErrs.Load() + t.decodeErrs.Load() + t.notFoundErrs.Load() + t.unexpectedErrs.Load()
}

// IPChanges returns how many times the address changed between cycles.
func (t *Tracker) IPChanges() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ipChanges
}

// AverageFetch returns the moving average of fetch latency.
func (t *Tracker) AverageFetch() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Duration(t.fetchLatency.Value())
}

// DumpToFile writes the summary to path.
func (t *Tracker) DumpToFile(path string) error {
	return os.WriteFile(path, []byte(t.Format()), 0600)
}

// Format returns a formatted run summary.
func (t *Tracker) Format() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	var b strings.Builder

	b.WriteString("=== IPWATCH RUN SUMMARY ===\n")
	b.WriteString(fmt.Sprintf("Source: %s\n", t.source))
	b.WriteString(fmt.Sprintf("Started: %s (%s)\n", t.startTime.Format(time.RFC3339), humanize.Time(t.startTime)))
	b.WriteString(fmt.Sprintf("Elapsed: %s\n\n", now.Sub(t.startTime).Round(time.Second)))

	b.WriteString("--- CYCLES ---\n")
	b.WriteString(fmt.Sprintf("Completed: %s\n", humanize.Comma(int64(t.cycles.Load()))))
	b.WriteString(fmt.Sprintf("Succeeded: %s\n", humanize.Comma(int64(t.succeeded.Load()))))
	b.WriteString(fmt.Sprintf("Network errors: %d\n", t.networkErrs.Load()))
	b.WriteString(fmt.Sprintf("Decode errors: %d\n", t.decodeErrs.Load()))
	b.WriteString(fmt.Sprintf("Missing mock file: %d\n", t.notFoundErrs.Load()))
	b.WriteString(fmt.Sprintf("Unexpected errors: %d\n", t.unexpectedErrs.Load()))
	b.WriteString("\n")

	b.WriteString("--- HISTORY ---\n")
	b.WriteString(fmt.Sprintf("Rows written: %s\n", humanize.Comma(int64(t.historyRows.Load()))))
	b.WriteString(fmt.Sprintf("Write errors: %d\n", t.historyErrs.Load()))
	b.WriteString("\n")

	b.WriteString("--- TIMING ---\n")
	if !t.lastFetchAt.IsZero() {
		b.WriteString(fmt.Sprintf("Average fetch latency: %s\n",
			time.Duration(t.fetchLatency.Value()).Round(time.Millisecond)))
		b.WriteString(fmt.Sprintf("Last fetch: %s\n", humanize.Time(t.lastFetchAt)))
	} else {
		b.WriteString("Last fetch: NEVER\n")
	}
	if !t.lastOKAt.IsZero() {
		b.WriteString(fmt.Sprintf("Last success: %s\n", humanize.Time(t.lastOKAt)))
	}
	b.WriteString("\n")

	b.WriteString("--- ADDRESS ---\n")
	if t.lastIP != "" {
		b.WriteString(fmt.Sprintf("Last IP: %s\n", t.lastIP))
	} else {
		b.WriteString("Last IP: unknown\n")
	}
	b.WriteString(fmt.Sprintf("Changes observed: %d\n", t.ipChanges))
	b.WriteString("\n")

	b.WriteString("--- ERRORS ---\n")
	if t.lastErr != nil {
		b.WriteString(fmt.Sprintf("Last error: %v\n", t.lastErr))
		b.WriteString(fmt.Sprintf("  At: %s (%s)\n", t.lastErrAt.Format(time.RFC3339), humanize.Time(t.lastErrAt)))
	} else {
		b.WriteString("Last error: none\n")
	}

	return b.String()
}
