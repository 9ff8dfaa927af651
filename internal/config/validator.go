package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/tempo/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduling.capacity_hours")
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

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateScheduling()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidDrivers(), c.Storage.Driver) {
		errors = append(errors, ValidationError{
			Field:   "storage.driver",
			Value:   c.Storage.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDrivers(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateScheduling() []ValidationError {
	var errors []ValidationError
	s := c.Scheduling

	if s.UrgencyWindowDays < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduling.urgency_window_days",
			Value:   s.UrgencyWindowDays,
			Message: "must be at least 1",
		})
	}
	if s.CapacityHours < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduling.capacity_hours",
			Value:   s.CapacityHours,
			Message: "must be non-negative",
		})
	}
	if s.CapacityHours > 24 {
		errors = append(errors, ValidationError{
			Field:   "scheduling.capacity_hours",
			Value:   s.CapacityHours,
			Message: "must not exceed 24 hours",
		})
	}
	if s.TimeUnitHours <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduling.time_unit_hours",
			Value:   s.TimeUnitHours,
			Message: "must be positive",
		})
	} else if s.CapacityHours > 0 && s.TimeUnitHours > s.CapacityHours {
		errors = append(errors, ValidationError{
			Field:   "scheduling.time_unit_hours",
			Value:   s.TimeUnitHours,
			Message: "must not exceed scheduling.capacity_hours",
		})
	}
	if s.DefaultDurationHours <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduling.default_duration_hours",
			Value:   s.DefaultDurationHours,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	levels := logging.ValidLevels()
	if c.Logging.Level != "" && !slices.Contains(levels, strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.ToLower(strings.Join(levels, ", "))),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
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
