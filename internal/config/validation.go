package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error concerns field or one of its children.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			return true
		}
	}
	return false
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// ValidateConfig checks a resolved configuration. Parse already runs it;
// callers building a Config by hand should run it themselves.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Height <= 0 {
		errs = append(errs, ValidationError{Field: "general.height", Message: "must be positive"})
	}
	if c.KeySize <= 0 {
		errs = append(errs, ValidationError{Field: "general.keySize", Message: "must be positive"})
	}
	if c.BarSpeed <= 0 {
		errs = append(errs, ValidationError{Field: "general.barSpeed", Message: "must be positive"})
	}
	if c.Margin < 0 {
		errs = append(errs, ValidationError{Field: "general.margin", Message: "must not be negative"})
	}
	if c.OutlineThickness < 0 {
		errs = append(errs, ValidationError{Field: "general.outlineThickness", Message: "must not be negative"})
	}
	if c.FPS < 1 || c.FPS > 1000 {
		errs = append(errs, *RangeError("general.fps", 1, 1000))
	}
	if c.TickRate < 1 || c.TickRate > 1000 {
		errs = append(errs, *RangeError("general.tickRate", 1, 1000))
	}
	if c.PressedAlphaDivisor < 1 {
		errs = append(errs, ValidationError{Field: "general.pressedAlphaDivisor", Message: "must be at least 1"})
	}
	if c.MinBarLength < 0 {
		errs = append(errs, ValidationError{Field: "general.minBarLength", Message: "must not be negative"})
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "general.logLevel",
			Message: fmt.Sprintf("unknown level %q (use debug, info, warn, error)", c.LogLevel),
		})
	}

	if len(c.Keys) == 0 {
		errs = append(errs, *RequiredFieldError("key"))
	}
	for i, k := range c.Keys {
		if k.Key == "" {
			errs = append(errs, *RequiredFieldError(fmt.Sprintf("key[%d].name", i)))
		}
		if k.Size <= 0 {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("key[%d].size", i), Message: "must be positive"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
