// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys, mirrored one to one by MOOD_* environment variables.
// - New returns the defaults; Load layers a YAML file and the environment on top.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"time"
)

// Ledger modes.
const (
	LedgerMemory  = "memory"
	LedgerGateway = "gateway"
)

// Live sources.
const (
	LiveLedger = "ledger"
	LiveNATS   = "nats"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// LedgerMode selects the ledger collaborator: memory or gateway.
	LedgerMode string `koanf:"ledger_mode"`

	// LedgerURL is the base URL of the ledger gateway.
	LedgerURL string `koanf:"ledger_url"`

	// LedgerWSURL overrides the gateway push endpoint. Derived from LedgerURL when empty.
	LedgerWSURL string `koanf:"ledger_ws_url"`

	// LiveSource selects where live events come from: ledger or nats.
	LiveSource string `koanf:"live_source"`

	// NATSURL and NATSSubjectPrefix configure the NATS live source.
	NATSURL           string `koanf:"nats_url"`
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`

	// EventName is the ledger event carrying mood records.
	EventName string `koanf:"event_name"`

	// Identity is the actor used for submissions and the per-user history view.
	Identity string `koanf:"identity"`

	// RefreshInterval is the snapshot period.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// FetchTimeout bounds every ledger read.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// SnapshotMaxEntries is the truncation window of each snapshot.
	SnapshotMaxEntries int `koanf:"snapshot_max_entries"`

	// InboxSize bounds the merge inbox.
	InboxSize int `koanf:"inbox_size"`

	// DedupeSize sets how many record identities are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// SubmitRate and SubmitBurst limit POST /moods per second.
	SubmitRate  float64 `koanf:"submit_rate"`
	SubmitBurst int     `koanf:"submit_burst"`

	// StreamInterval is how often /stream checks for a new snapshot version.
	StreamInterval time.Duration `koanf:"stream_interval"`

	// MetricsRefresh is the system metrics sampling period.
	MetricsRefresh time.Duration `koanf:"metrics_refresh"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		LedgerMode:         LedgerMemory,
		LiveSource:         LiveLedger,
		NATSURL:            "nats://127.0.0.1:4222",
		NATSSubjectPrefix:  "moodblocks",
		EventName:          "MoodSet",
		RefreshInterval:    30 * time.Second,
		FetchTimeout:       10 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		SnapshotMaxEntries: 500,
		InboxSize:          1024,
		DedupeSize:         50_000,
		SubmitRate:         2,
		SubmitBurst:        5,
		StreamInterval:     250 * time.Millisecond,
		MetricsRefresh:     15 * time.Second,
	}
}

// Validate checks the fields that would otherwise fail late.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LedgerMode != LedgerMemory && c.LedgerMode != LedgerGateway:
		return fmt.Errorf("%w: unknown ledger_mode %q", ErrInvalidConfig, c.LedgerMode)
	case c.LedgerMode == LedgerGateway && c.LedgerURL == "":
		return fmt.Errorf("%w: ledger_url is required in gateway mode", ErrInvalidConfig)
	case c.LiveSource != LiveLedger && c.LiveSource != LiveNATS:
		return fmt.Errorf("%w: unknown live_source %q", ErrInvalidConfig, c.LiveSource)
	case c.LiveSource == LiveNATS && c.NATSURL == "":
		return fmt.Errorf("%w: nats_url is required when live_source is nats", ErrInvalidConfig)
	case c.RefreshInterval <= 0 || c.FetchTimeout <= 0:
		return fmt.Errorf("%w: refresh_interval and fetch_timeout must be positive", ErrInvalidConfig)
	case c.SnapshotMaxEntries <= 0 || c.InboxSize <= 0:
		return fmt.Errorf("%w: snapshot_max_entries and inbox_size must be positive", ErrInvalidConfig)
	case c.SubmitRate <= 0 || c.SubmitBurst <= 0:
		return fmt.Errorf("%w: submit_rate and submit_burst must be positive", ErrInvalidConfig)
	}
	return nil
}
