// Package config defines the run configuration for the booklet downloader
// and loads it from a JSON config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultMaxWorkers     = 3
	DefaultRequestDelayMS = 500
)

// Config is the resolved, immutable configuration for one invocation.
// Construct it through Load (or fill it directly in tests) and do not
// mutate it once a run has started.
type Config struct {
	// Cookie is the opaque session credential passed through to the API.
	Cookie string

	// BookID is the target booklet when DownloadAll is false.
	BookID string

	// OutputDir is the root directory all artifacts are written under.
	OutputDir string

	// MaxWorkers bounds concurrent chapter fetches.
	MaxWorkers int

	// RequestDelayMS is the courtesy pause applied after each content
	// request, in milliseconds.
	RequestDelayMS int

	// AutoTitle injects a per-chapter title header in single-file output.
	AutoTitle bool

	// DownloadAll processes every owned booklet instead of BookID.
	DownloadAll bool

	// SingleFile merges all chapters into one markdown file; otherwise
	// each chapter is written as its own numbered file.
	SingleFile bool

	// LocalizeImages downloads embedded remote images and rewrites the
	// document to reference the local copies.
	LocalizeImages bool

	// EPUB additionally exports each booklet as an EPUB file.
	EPUB bool

	// Exclude lists booklet ids skipped in DownloadAll mode. Ids are
	// compared literally, with no trimming or case folding.
	Exclude []string

	// HistoryDB is the path of the run-history database. Empty disables
	// history recording.
	HistoryDB string
}

// ValidationError reports a required field missing from the configuration.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing required field %q", e.Field)
}

// rawConfig mirrors the JSON file. Optional booleans are pointers so that
// an absent field can be told apart from an explicit false.
type rawConfig struct {
	Cookie         string   `json:"cookie"`
	BookID         string   `json:"book_id"`
	OutputDir      string   `json:"output_dir"`
	MaxWorkers     int      `json:"max_workers"`
	RequestDelayMS *int     `json:"request_delay_ms"`
	AutoTitle      *bool    `json:"auto_title"`
	DownloadAll    *bool    `json:"download_all"`
	SingleFile     *bool    `json:"single_file"`
	LocalizeImages *bool    `json:"localize_images"`
	EPUB           bool     `json:"epub"`
	Exclude        []string `json:"exclude"`
	HistoryDB      string   `json:"history_db"`
}

// Load reads and resolves the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse resolves a config from raw JSON bytes. Split out from Load so
// tests can feed literals.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg := &Config{
		Cookie:         raw.Cookie,
		BookID:         raw.BookID,
		OutputDir:      raw.OutputDir,
		MaxWorkers:     raw.MaxWorkers,
		RequestDelayMS: DefaultRequestDelayMS,
		AutoTitle:      boolOr(raw.AutoTitle, true),
		DownloadAll:    boolOr(raw.DownloadAll, true),
		SingleFile:     boolOr(raw.SingleFile, true),
		LocalizeImages: boolOr(raw.LocalizeImages, true),
		EPUB:           raw.EPUB,
		Exclude:        raw.Exclude,
		HistoryDB:      raw.HistoryDB,
	}
	if raw.RequestDelayMS != nil {
		cfg.RequestDelayMS = *raw.RequestDelayMS
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.RequestDelayMS < 0 {
		cfg.RequestDelayMS = 0
	}
	return cfg, nil
}

// Validate checks that everything required for a run is present. It is
// called before any network activity.
func (c *Config) Validate() error {
	if c.Cookie == "" {
		return &ValidationError{Field: "cookie"}
	}
	if c.OutputDir == "" {
		return &ValidationError{Field: "output_dir"}
	}
	if !c.DownloadAll && c.BookID == "" {
		return &ValidationError{Field: "book_id"}
	}
	return nil
}

// RequestDelay returns the per-request courtesy delay as a duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
