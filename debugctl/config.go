package debugctl

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadConfig.
const (
	EnvDir         = "DEBUGKIT_DIR"
	EnvEnabled     = "DEBUGKIT_ENABLED"
	EnvReportEvery = "DEBUGKIT_REPORT_EVERY"
)

// Config carries the process-wide settings of the debug toolkit.
type Config struct {
	// Dir is the debug directory all report files go to.
	Dir string

	// Enabled is the initial state of the gate. Debugging defaults to off.
	Enabled bool

	// ReportEvery is the tick interval between periodic report flushes.
	ReportEvery uint64
}

// DefaultConfig returns the configuration used when no environment overrides
// are present.
func DefaultConfig() Config {
	return Config{
		Dir:         "debug",
		Enabled:     false,
		ReportEvery: 20,
	}
}

// LoadConfig builds a Config from the environment, after loading a .env file
// from the working directory when one exists. Unset or malformed variables
// fall back to the defaults.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if v := os.Getenv(EnvDir); v != "" {
		cfg.Dir = v
	}

	if v := os.Getenv(EnvEnabled); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = enabled
		}
	}

	if v := os.Getenv(EnvReportEvery); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.ReportEvery = n
		}
	}

	return cfg
}

// NewGateFromConfig creates a Gate initialized to the configured state.
func NewGateFromConfig(cfg Config) *Gate {
	g := NewGate()
	if cfg.Enabled {
		g.Set(true)
	}

	return g
}
