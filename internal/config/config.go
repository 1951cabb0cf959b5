// Package config handles configuration loading and merging for ipwatch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ipwatch/internal/source"
)

// DefaultFields is the field selection used when none is given.
const DefaultFields = "ip,version,city,region,country,isp,asn"

// ErrNoFields is returned when the field selection is empty after trimming.
var ErrNoFields = errors.New("no fields specified")

// Config holds all configuration values for a run.
type Config struct {
	APIURL    string   `yaml:"api_url"`
	Timeout   Duration `yaml:"timeout"`
	Fields    []string `yaml:"fields"`
	Interval  Duration `yaml:"interval"`
	Count     int      `yaml:"count"`
	MockFile  string   `yaml:"mock_file"`
	ManualIP  string   `yaml:"manual_ip"`
	PrintTime bool     `yaml:"print_time"`
	Color     bool     `yaml:"color"`
	Verbose   bool     `yaml:"verbose"`

	// Persistence
	HistoryFile  string `yaml:"history_file"`
	SnapshotFile string `yaml:"snapshot_file"`
	SummaryFile  string `yaml:"summary_file"`
}

// Duration is a wrapper around time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	// Try parsing as an integer first (seconds)
	var secs int
	if err := unmarshal(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// FlagOverrides contains CLI flag values that override config file settings.
// Empty strings are not considered overrides; numeric and boolean flags
// apply only when the corresponding Has* field is true.
type FlagOverrides struct {
	APIURL       string
	Fields       string // comma-separated
	MockFile     string
	ManualIP     string
	HistoryFile  string
	SnapshotFile string
	SummaryFile  string
	TimeoutSecs  int
	IntervalSecs int
	Count        int
	NoPrintTime  bool
	Verbose      bool

	HasFields      bool
	HasTimeout     bool
	HasInterval    bool
	HasCount       bool
	HasNoPrintTime bool
	HasVerbose     bool
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		APIURL:    source.DefaultEndpoint,
		Timeout:   Duration(source.DefaultTimeout),
		Fields:    ParseFields(DefaultFields),
		Interval:  0,
		Count:     1,
		PrintTime: true,
		Color:     true,
	}
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations.
// If explicitPath is provided, returns it directly.
// Otherwise searches in: current dir, ~/.config/ipwatch/, ~/
func FindConfigFile(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	locations := []string{
		".ipwatch.yaml",
		".ipwatch.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".config", "ipwatch", "config.yaml"),
			filepath.Join(home, ".config", "ipwatch", "config.yml"),
			filepath.Join(home, ".ipwatch.yaml"),
			filepath.Join(home, ".ipwatch.yml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// MergeFlags creates a new Config with flag overrides applied.
func (c *Config) MergeFlags(flags *FlagOverrides) *Config {
	merged := *c
	merged.Fields = append([]string(nil), c.Fields...)

	if flags.APIURL != "" {
		merged.APIURL = flags.APIURL
	}
	if flags.MockFile != "" {
		merged.MockFile = flags.MockFile
	}
	if flags.ManualIP != "" {
		merged.ManualIP = flags.ManualIP
	}
	if flags.HistoryFile != "" {
		merged.HistoryFile = flags.HistoryFile
	}
	if flags.SnapshotFile != "" {
		merged.SnapshotFile = flags.SnapshotFile
	}
	if flags.SummaryFile != "" {
		merged.SummaryFile = flags.SummaryFile
	}
	if flags.HasFields {
		merged.Fields = ParseFields(flags.Fields)
	}
	if flags.HasTimeout {
		merged.Timeout = Duration(time.Duration(flags.TimeoutSecs) * time.Second)
	}
	if flags.HasInterval {
		merged.Interval = Duration(time.Duration(flags.IntervalSecs) * time.Second)
	}
	if flags.HasCount {
		merged.Count = flags.Count
	}
	if flags.HasNoPrintTime {
		merged.PrintTime = !flags.NoPrintTime
	}
	if flags.HasVerbose {
		merged.Verbose = flags.Verbose
	}

	return &merged
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	c.Fields = normalizeFields(c.Fields)
	if len(c.Fields) == 0 {
		return ErrNoFields
	}
	if c.MockFile == "" && c.APIURL == "" {
		return errors.New("API URL is required")
	}
	return nil
}

// Clamp replaces out-of-range numeric settings with usable ones and
// returns a note for each adjustment.
func (c *Config) Clamp() []string {
	var notes []string
	if c.Count < 1 {
		notes = append(notes, fmt.Sprintf("count %d is below 1, running once", c.Count))
		c.Count = 1
	}
	if c.Interval < 0 {
		notes = append(notes, fmt.Sprintf("interval %s is negative, using the minimum pause", c.Interval.Duration()))
		c.Interval = 0
	}
	if c.Timeout <= 0 {
		notes = append(notes, fmt.Sprintf("timeout %s is not positive, using %s", c.Timeout.Duration(), source.DefaultTimeout))
		c.Timeout = Duration(source.DefaultTimeout)
	}
	return notes
}

// ParseFields splits a comma-separated list, trimming blanks and
// dropping empty entries. Order and duplicates are preserved.
func ParseFields(list string) []string {
	return normalizeFields(strings.Split(list, ","))
}

func normalizeFields(in []string) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}
