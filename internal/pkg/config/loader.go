// Package config loads typed settings from environment variables. Loaders
// never fail: an unparsable or invalid value falls back to the default and
// the returned LoadResult carries a warning for the operator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadResult is the outcome of loading one setting.
//
// Example:
//
//	r := LoadEnvDuration("FETCH_TIMEOUT", 15*time.Second, ValidatePositiveDuration)
//	for _, w := range r.Warnings {
//	    logger.Warn("configuration fallback", slog.String("detail", w))
//	}
//	timeout := r.Value
type LoadResult[T any] struct {
	Value           T
	Warnings        []string
	FallbackApplied bool
}

// Parser converts the raw text of an environment variable to T.
type Parser[T any] func(string) (T, error)

// LoadEnv reads envKey, parses it and validates it. Unset or empty
// variables yield the default without a warning.
func LoadEnv[T any](envKey string, defaultValue T, parse Parser[T], validator func(T) error) LoadResult[T] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return LoadResult[T]{Value: defaultValue}
	}

	parsed, err := parse(raw)
	if err == nil && validator != nil {
		err = validator(parsed)
	}
	if err != nil {
		return LoadResult[T]{
			Value: defaultValue,
			Warnings: []string{fmt.Sprintf(
				"Invalid %s='%s': %v, falling back to default '%v'",
				envKey, raw, err, defaultValue)},
			FallbackApplied: true,
		}
	}
	return LoadResult[T]{Value: parsed}
}

// LoadEnvString returns the variable or the default when it is unset.
// No validation is performed.
func LoadEnvString(envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return defaultValue
}

// LoadEnvWithFallback loads a string and validates it.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) LoadResult[string] {
	return LoadEnv(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration loads a Go duration string such as "30s" or "5m".
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) LoadResult[time.Duration] {
	return LoadEnv(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) LoadResult[int] {
	return LoadEnv(envKey, defaultValue, func(s string) (int, error) {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return v, nil
	}, validator)
}

// LoadEnvInt64 loads a base-10 64-bit integer.
func LoadEnvInt64(envKey string, defaultValue int64, validator func(int64) error) LoadResult[int64] {
	return LoadEnv(envKey, defaultValue, func(s string) (int64, error) {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return v, nil
	}, validator)
}

// LoadEnvFloat loads a floating point number.
func LoadEnvFloat(envKey string, defaultValue float64, validator func(float64) error) LoadResult[float64] {
	return LoadEnv(envKey, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}, validator)
}

// LoadEnvBool loads a boolean. Accepted values follow strconv.ParseBool
// ("1", "t", "true", "0", "f", "false" and their capitalised forms).
func LoadEnvBool(envKey string, defaultValue bool) LoadResult[bool] {
	return LoadEnv(envKey, defaultValue, func(s string) (bool, error) {
		return strconv.ParseBool(strings.TrimSpace(s))
	}, nil)
}

// Warnings accumulates fallback warnings across several loads.
type Warnings []string

// Collect appends the warnings of r to w and returns its value.
func Collect[T any](w *Warnings, r LoadResult[T]) T {
	*w = append(*w, r.Warnings...)
	return r.Value
}
