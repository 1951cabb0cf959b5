// Package check implements the ipwatch command: flag parsing, config
// layering, and wiring of the source, presenter and scheduler.
package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"ipwatch/internal/config"
	"ipwatch/internal/geo"
	"ipwatch/internal/present"
	"ipwatch/internal/scheduler"
	"ipwatch/internal/source"
)

var (
	version = "dev"
)

// NoFieldsMessage is printed when the field selection is empty.
const NoFieldsMessage = "No fields specified. Exiting."

// NewCommand returns the ipwatch root command bound to ctx.
func NewCommand(ctx context.Context, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ipwatch",
		Short:         "Show public IP geolocation, once or on a schedule",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := bindFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if flags.ShowVersion {
			fmt.Fprintf(stdout, "ipwatch version %s\n", version)
			return nil
		}
		return execute(ctx, flags, stdout, stderr)
	}
	return cmd
}

// Run parses args and executes one ipwatch invocation.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewCommand(ctx, stdout, stderr)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func execute(ctx context.Context, flags *Flags, stdout, stderr io.Writer) error {
	// Load config
	configPath := config.FindConfigFile(flags.ConfigFile)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Merge CLI flags into config
	cfg = cfg.MergeFlags(flags.ToOverrides())

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrNoFields) {
			fmt.Fprintln(stdout, NoFieldsMessage)
			return err
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(stderr, cfg.Verbose)
	if configPath != "" {
		logger.WithField("path", configPath).Debug("loaded config")
	}
	for _, note := range cfg.Clamp() {
		logger.Warn(note)
	}
	for _, f := range cfg.Fields {
		if !geo.IsCanonical(f) {
			logger.WithField("field", f).Warn("unknown field, it will show as N/A")
		}
	}

	src := source.New(config.ExpandPath(cfg.MockFile), cfg.APIURL, cfg.Timeout.Duration())
	logger.WithFields(log.Fields{
		"source":   src.Name(),
		"fields":   strings.Join(cfg.Fields, ","),
		"count":    cfg.Count,
		"interval": cfg.Interval.Duration(),
	}).Debug("starting")

	out, colorize := consoleWriter(stdout, cfg.Color)
	loop := scheduler.New(src, scheduler.Options{
		Count:        cfg.Count,
		Interval:     cfg.Interval.Duration(),
		Fields:       cfg.Fields,
		ManualIP:     cfg.ManualIP,
		HistoryPath:  config.ExpandPath(cfg.HistoryFile),
		SnapshotPath: config.ExpandPath(cfg.SnapshotFile),
		PrintTime:    cfg.PrintTime,
	}, out, logger)
	loop.SetPrinter(present.NewPrinter(out, colorize))
	loop.OnState = func(s scheduler.State) {
		logger.WithField("state", s).Debug("transition")
	}

	state, err := loop.Run(ctx)
	if cfg.Verbose {
		fmt.Fprint(stderr, "\n"+loop.Tracker().Format())
	}
	if cfg.SummaryFile != "" {
		path := config.ExpandPath(cfg.SummaryFile)
		if derr := loop.Tracker().DumpToFile(path); derr != nil {
			logger.WithError(derr).WithField("path", path).Error("Failed to write run summary")
		} else {
			logger.WithField("path", path).Debug("run summary written")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.WithField("state", state).Debug("finished")
	return nil
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return &log.Logger{Handler: cli.New(w), Level: level}
}

// consoleWriter returns the writer for results and whether the banner may
// be colored. Only terminals get color.
func consoleWriter(w io.Writer, enabled bool) (io.Writer, bool) {
	if f, ok := w.(*os.File); ok {
		return colorable.NewColorable(f), enabled && !color.NoColor
	}
	return w, false
}
