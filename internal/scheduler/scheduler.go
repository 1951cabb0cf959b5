// Package scheduler drives check cycles: fetch, normalize, present,
// persist, then sleep until the next run or stop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"

	"ipwatch/internal/diagnostics"
	"ipwatch/internal/geo"
	"ipwatch/internal/history"
	"ipwatch/internal/present"
	"ipwatch/internal/source"
)

// State is a scheduler state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StatePresenting
	StatePersisting
	StateSleeping
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StatePresenting:
		return "presenting"
	case StatePersisting:
		return "persisting"
	case StateSleeping:
		return "sleeping"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// MinPause separates runs when no interval is configured.
const MinPause = time.Second

const timeLayout = "2006-01-02 15:04:05"

// Options configures a Loop.
type Options struct {
	Count        int           // total runs, at least 1
	Interval     time.Duration // pause between runs; zero means MinPause
	Fields       []string      // fields to print and persist, in order
	ManualIP     string        // replaces the fetched ip when set
	HistoryPath  string        // CSV history file; empty disables
	SnapshotPath string        // raw JSON snapshot; empty disables
	PrintTime    bool          // print a timestamp line before each run
}

// Loop runs check cycles sequentially.
type Loop struct {
	opts    Options
	source  source.Source
	stdout  io.Writer
	logger  log.Interface
	printer *present.Printer
	history *history.Writer
	tracker *diagnostics.Tracker

	// Sleep waits for d or until ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// OnState, when set, observes every state transition.
	OnState func(State)

	state State
	run   int
}

// New returns a Loop reading from src and writing results to stdout.
func New(src source.Source, opts Options, stdout io.Writer, logger log.Interface) *Loop {
	if opts.Count < 1 {
		opts.Count = 1
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	return &Loop{
		opts:    opts,
		source:  src,
		stdout:  stdout,
		logger:  logger,
		printer: present.NewPrinter(stdout, false),
		history: history.New(),
		tracker: diagnostics.New(src.Name()),
		Sleep:   sleep,
		Now:     time.Now,
	}
}

// SetPrinter replaces the default uncolored printer.
func (l *Loop) SetPrinter(p *present.Printer) { l.printer = p }

// SetHistoryWriter replaces the default history writer.
func (l *Loop) SetHistoryWriter(w *history.Writer) { l.history = w }

// Tracker returns the statistics collected so far.
func (l *Loop) Tracker() *diagnostics.Tracker { return l.tracker }

// State returns the current state.
func (l *Loop) State() State { return l.state }

// Runs returns how many cycles have been attempted.
func (l *Loop) Runs() int { return l.run }

// Run executes cycles until the configured count is reached (Done) or an
// unrecoverable mock error occurs (Aborted). A cancelled ctx ends the
// loop as Aborted and returns the context error.
func (l *Loop) Run(ctx context.Context) (State, error) {
	l.run = 0
	l.setState(StateIdle)

	for {
		if l.opts.PrintTime {
			fmt.Fprintf(l.stdout, "[%s] Running check (%d/%d)\n",
				l.Now().Format(timeLayout), l.run+1, l.opts.Count)
		}

		abort := l.cycle(ctx)
		l.run++

		if abort {
			l.setState(StateAborted)
			break
		}
		if l.run >= l.opts.Count {
			l.setState(StateDone)
			break
		}

		l.setState(StateSleeping)
		pause := l.pause()
		l.logger.Debugf("next check %s", humanize.Time(l.Now().Add(pause)))
		if err := l.Sleep(ctx, pause); err != nil {
			l.setState(StateAborted)
			fmt.Fprintln(l.stdout, "Done.")
			return l.state, err
		}
	}

	fmt.Fprintln(l.stdout, "Done.")
	return l.state, nil
}

func (l *Loop) pause() time.Duration {
	if l.opts.Interval > 0 {
		return l.opts.Interval
	}
	return MinPause
}

// cycle runs one fetch/present/persist sequence and reports whether the
// loop must stop.
func (l *Loop) cycle(ctx context.Context) bool {
	l.setState(StateFetching)
	start := l.Now()
	raw, err := l.source.Fetch(ctx)
	l.tracker.RecordFetch(l.Now().Sub(start))
	if err != nil {
		outcome, abort := classify(err)
		l.report(outcome, err)
		l.tracker.RecordCycle(outcome, err)
		return abort
	}

	l.setState(StatePresenting)
	rec := geo.Normalize(raw)
	if l.opts.ManualIP != "" {
		rec.OverrideIP(l.opts.ManualIP)
	}
	if err := l.printer.Print(rec, l.opts.Fields); err != nil {
		l.report(diagnostics.OutcomeUnexpected, err)
		l.tracker.RecordCycle(diagnostics.OutcomeUnexpected, err)
		return false
	}

	l.setState(StatePersisting)
	l.persist(raw, rec)

	if ip, ok := rec.Get(geo.FieldIP); ok {
		if l.tracker.RecordIP(cast.ToString(ip)) {
			l.logger.WithField("ip", ip).Info("public IP changed")
		}
	}
	l.tracker.RecordCycle(diagnostics.OutcomeOK, nil)
	return false
}

func (l *Loop) persist(raw geo.RawRecord, rec geo.Record) {
	if l.opts.HistoryPath != "" {
		err := l.history.Append(l.opts.HistoryPath, l.opts.Fields, rec)
		l.tracker.RecordHistoryWrite(err)
		if err != nil {
			l.logger.WithError(err).WithField("path", l.opts.HistoryPath).Error("Failed to append history")
		} else {
			fmt.Fprintf(l.stdout, "Appended to history: %s\n", l.opts.HistoryPath)
		}
	}

	if l.opts.SnapshotPath != "" {
		if err := history.WriteSnapshot(l.opts.SnapshotPath, raw); err != nil {
			l.logger.WithError(err).WithField("path", l.opts.SnapshotPath).Error("Failed to save snapshot")
		} else {
			fmt.Fprintf(l.stdout, "Snapshot saved to %s\n", l.opts.SnapshotPath)
		}
	}
}

func (l *Loop) report(outcome diagnostics.Outcome, err error) {
	entry := l.logger.WithError(err)
	switch outcome {
	case diagnostics.OutcomeNetwork:
		entry.Error("Network/API error")
	case diagnostics.OutcomeNotFound:
		entry.Error("Mock file not found")
	case diagnostics.OutcomeDecode:
		entry.Error("Mock file or API returned invalid JSON")
	default:
		entry.Error("Unexpected error")
	}
}

func (l *Loop) setState(s State) {
	l.state = s
	if l.OnState != nil {
		l.OnState(s)
	}
}

// classify maps a fetch error to its outcome and whether it aborts the loop.
func classify(err error) (diagnostics.Outcome, bool) {
	var notFound *source.NotFoundError
	var decodeErr *source.DecodeError
	var netErr *source.NetworkError
	switch {
	case errors.As(err, &notFound):
		return diagnostics.OutcomeNotFound, true
	case errors.As(err, &decodeErr):
		return diagnostics.OutcomeDecode, decodeErr.Mock
	case errors.As(err, &netErr):
		return diagnostics.OutcomeNetwork, false
	default:
		return diagnostics.OutcomeUnexpected, false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
