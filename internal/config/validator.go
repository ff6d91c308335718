package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "watch.debounce_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidOutputFormats returns the list of valid run output formats
func ValidOutputFormats() []string {
	return []string{"text", "json"}
}

// ValidColorModes returns the list of valid output.color values
func ValidColorModes() []string {
	return []string{"auto", "always", "never"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateOutput()...)
	errors = append(errors, c.validateWatch()...)

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateOutput() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidOutputFormats(), c.Output.Format) {
		errors = append(errors, ValidationError{
			Field:   "output.format",
			Value:   c.Output.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidOutputFormats(), ", ")),
		})
	}

	if !slices.Contains(ValidColorModes(), c.Output.Color) {
		errors = append(errors, ValidationError{
			Field:   "output.color",
			Value:   c.Output.Color,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidColorModes(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	// Zero disables debouncing; above a minute the watcher looks hung.
	const maxDebounceMs = 60_000
	if c.Watch.DebounceMs < 0 || c.Watch.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxDebounceMs),
		})
	}

	return errors
}
