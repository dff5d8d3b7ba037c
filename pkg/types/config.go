package types

import (
	"errors"
	"time"
)

// Config holds engine selection and the contention parameters applied to every
// connection opened from it.
type Config struct {
	Engine        string `json:"engine" yaml:"engine" mapstructure:"engine"`
	BusyTimeoutMs int    `json:"busy_timeout_ms" yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	MaxRetries    int    `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayUs  int    `json:"retry_delay_us" yaml:"retry_delay_us" mapstructure:"retry_delay_us"`
	LogLevel      string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// Supported engine names. EngineDefault picks whatever the build selected.
const (
	EngineDefault = ""
	EnginePureGo  = "purego"
	EngineCGO     = "cgo"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Config validation errors.
var (
	ErrEngineUnknown      = errors.New("unknown engine")
	ErrBusyTimeoutInvalid = errors.New("busy timeout must not be negative")
	ErrMaxRetriesInvalid  = errors.New("max retries must not be negative")
	ErrRetryDelayInvalid  = errors.New("retry delay must not be negative")
	ErrLogLevelUnknown    = errors.New("unknown log level")
)

var knownEngines = map[string]bool{
	EngineDefault: true,
	EnginePureGo:  true,
	EngineCGO:     true,
}

var knownLogLevels = map[string]bool{
	"":            true,
	LogLevelDebug: true,
	LogLevelInfo:  true,
	LogLevelWarn:  true,
	LogLevelError: true,
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Engine:        EngineDefault,
		BusyTimeoutMs: int(DefaultBusyTimeout / time.Millisecond),
		MaxRetries:    DefaultMaxRetries,
		RetryDelayUs:  int(DefaultRetryDelay / time.Microsecond),
		LogLevel:      LogLevelInfo,
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel error from
// this package on failure.
func (c Config) Validate() error {
	if !knownEngines[c.Engine] {
		return ErrEngineUnknown
	}
	if c.BusyTimeoutMs < 0 {
		return ErrBusyTimeoutInvalid
	}
	if c.MaxRetries < 0 {
		return ErrMaxRetriesInvalid
	}
	if c.RetryDelayUs < 0 {
		return ErrRetryDelayInvalid
	}
	if !knownLogLevels[c.LogLevel] {
		return ErrLogLevelUnknown
	}
	return nil
}

// BusyTimeout returns the configured busy timeout as a duration.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// RetryPolicy returns the retry policy described by the configuration.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.MaxRetries,
		Delay:      time.Duration(c.RetryDelayUs) * time.Microsecond,
	}
}
