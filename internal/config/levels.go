// Package config holds the small, hand-maintained constants the rest of
// EVFS's ambient stack (chiefly internal/logger) is built against.
package config

// Severity level strings accepted by cfg.LoggingConfig.Severity and by
// internal/logger.setLoggingLevel.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// LogRotateConfig mirrors the legacy (pre-cfg.LoggingConfig) log rotation
// knobs, still accepted by InitLogFile for backward compatibility with
// callers constructed before the cfg package existed.
type LogRotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultLogRotateConfig returns the rotation policy used when a caller
// does not specify one.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{
		MaxFileSizeMB:   512,
		BackupFileCount: 10,
		Compress:        true,
	}
}

// LogConfig is the legacy logging configuration shape, kept so
// InitLogFile can accept either it or the newer cfg.LoggingConfig.
type LogConfig struct {
	LogRotateConfig LogRotateConfig
}
