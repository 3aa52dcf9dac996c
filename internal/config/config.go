// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults come from New; Load layers a YAML file and env vars on top.
// - Page definitions default to DefaultPages and are replaced as a whole
//   when the file declares its own.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"github.com/okian/crewboard/internal/report"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the log encoding: json or text.
	LogFormat string `koanf:"log_format" validate:"oneof=json text"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// SheetBaseURL is the published spreadsheet the default pages read from.
	SheetBaseURL string `koanf:"sheet_base_url" validate:"required,url"`

	// CacheTTLSeconds expires cached sheets within a session. 0 keeps them
	// until the next session starts.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds" validate:"gte=0"`

	// FetchTimeoutSeconds bounds one sheet download.
	FetchTimeoutSeconds int `koanf:"fetch_timeout_seconds" validate:"gt=0"`

	// FetchRetries is the number of retries for transient fetch failures.
	FetchRetries int `koanf:"fetch_retries" validate:"gte=0"`

	// FetchRatePerSecond and FetchBurst pace requests to the sheet host.
	FetchRatePerSecond float64 `koanf:"fetch_rate_per_second" validate:"gt=0"`
	FetchBurst         int     `koanf:"fetch_burst" validate:"gt=0"`

	// MaxFetchBytes caps the size of one CSV export.
	MaxFetchBytes int64 `koanf:"max_fetch_bytes" validate:"gt=0"`

	// WarmConcurrency bounds concurrent fetches when warming the cache.
	WarmConcurrency int `koanf:"warm_concurrency" validate:"gt=0"`

	// ScoreRounding rounds scores to this many decimals; negative disables.
	ScoreRounding int `koanf:"score_rounding"`

	// SessionCookie names the cookie carrying the dashboard session id.
	SessionCookie string `koanf:"session_cookie" validate:"required"`

	// Pages declares the report pages. Empty means DefaultPages.
	Pages []report.Config `koanf:"pages"`
}

// New creates a Config with defaults. Pages are filled in by Load.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "json",
		Addr:                ":9080",
		SheetBaseURL:        DefaultSheetBaseURL,
		CacheTTLSeconds:     0,
		FetchTimeoutSeconds: 15,
		FetchRetries:        2,
		FetchRatePerSecond:  5,
		FetchBurst:          5,
		MaxFetchBytes:       32 << 20,
		WarmConcurrency:     4,
		ScoreRounding:       2,
		SessionCookie:       "crew_session",
	}
}

// Page returns the page named name.
func (c *Config) Page(name string) (report.Config, bool) {
	for _, p := range c.Pages {
		if p.Page == name {
			return p, true
		}
	}
	return report.Config{}, false
}
