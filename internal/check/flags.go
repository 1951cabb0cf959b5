package check

import (
	"github.com/spf13/pflag"

	"ipwatch/internal/config"
	"ipwatch/internal/history"
)

// Flags holds parsed command-line flags.
type Flags struct {
	ConfigFile   string
	MockFile     string
	ManualIP     string
	Fields       string
	IntervalSecs int
	Count        int
	HistoryFile  string
	SnapshotFile string
	SnapshotAuto bool
	SummaryFile  string
	APIURL       string
	TimeoutSecs  int
	NoPrintTime  bool
	Verbose      bool
	ShowVersion  bool

	// set tracks flags given explicitly on the command line
	set func(name string) bool
}

func bindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{set: fs.Changed}

	fs.StringVarP(&f.ConfigFile, "config", "c", "", "Path to config file")
	fs.StringVar(&f.MockFile, "mock", "", "Read the record from a JSON file instead of the API")
	fs.StringVar(&f.ManualIP, "manual-ip", "", "Override the reported IP address")
	fs.StringVar(&f.Fields, "fields", config.DefaultFields, "Comma-separated list of fields to display")
	fs.IntVar(&f.IntervalSecs, "interval", 0, "Seconds between checks (0 to run once)")
	fs.IntVar(&f.Count, "count", 1, "Number of checks to run")
	fs.StringVar(&f.HistoryFile, "save-history", "", "Append each result to this CSV file")
	fs.StringVar(&f.SnapshotFile, "save-json", "", "Write the raw JSON record to this file")
	fs.BoolVar(&f.SnapshotAuto, "save-json-default", false, "Write the raw JSON record to "+history.DefaultSnapshotFile)
	fs.StringVar(&f.SummaryFile, "summary-file", "", "Write the run summary to this file on exit")
	fs.StringVar(&f.APIURL, "api-url", "", "Geolocation API endpoint")
	fs.IntVar(&f.TimeoutSecs, "timeout", 10, "Request timeout in seconds")
	fs.BoolVar(&f.NoPrintTime, "no-print-time", false, "Do not print a timestamp before each check")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Enable debug logging and print a run summary")
	fs.BoolVar(&f.ShowVersion, "version", false, "Show version")

	return f
}

// ToOverrides converts flags to config overrides.
func (f *Flags) ToOverrides() *config.FlagOverrides {
	snapshot := f.SnapshotFile
	if snapshot == "" && f.SnapshotAuto {
		snapshot = history.DefaultSnapshotFile
	}
	return &config.FlagOverrides{
		APIURL:         f.APIURL,
		Fields:         f.Fields,
		MockFile:       f.MockFile,
		ManualIP:       f.ManualIP,
		HistoryFile:    f.HistoryFile,
		SnapshotFile:   snapshot,
		SummaryFile:    f.SummaryFile,
		TimeoutSecs:    f.TimeoutSecs,
		IntervalSecs:   f.IntervalSecs,
		Count:          f.Count,
		NoPrintTime:    f.NoPrintTime,
		Verbose:        f.Verbose,
		HasFields:      f.set("fields"),
		HasTimeout:     f.set("timeout"),
		HasInterval:    f.set("interval"),
		HasCount:       f.set("count"),
		HasNoPrintTime: f.set("no-print-time"),
		HasVerbose:     f.set("verbose"),
	}
}
