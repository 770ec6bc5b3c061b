package config

import (
	"cmp"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard five-field expressions ("minute hour dom month dow").
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronSchedule validates a five-field cron expression such as
// "*/30 * * * *". See https://crontab.guru/ for the syntax.
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("invalid cron schedule: cannot be empty")
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", schedule, err)
	}
	return nil
}

// ValidateTimezone checks that timezone is a loadable IANA name ("UTC",
// "Asia/Tokyo").
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("invalid timezone: cannot be empty")
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", timezone, err)
	}
	return nil
}

// ValidateRange checks lo <= value <= hi.
func ValidateRange[T cmp.Ordered](value, lo, hi T) error {
	if lo > hi {
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", lo, hi)
	}
	if value < lo {
		return fmt.Errorf("value %v is below minimum %v", value, lo)
	}
	if value > hi {
		return fmt.Errorf("value %v exceeds maximum %v", value, hi)
	}
	return nil
}

// ValidateDuration checks that duration lies within [lo, hi].
func ValidateDuration(duration, lo, hi time.Duration) error {
	return ValidateRange(duration, lo, hi)
}

// ValidateIntRange checks that value lies within [lo, hi].
func ValidateIntRange(value, lo, hi int) error {
	return ValidateRange(value, lo, hi)
}

// ValidateFraction checks that v lies within [0, 1].
func ValidateFraction(v float64) error {
	return ValidateRange(v, 0, 1)
}

// ValidatePositiveDuration rejects zero and negative durations.
func ValidatePositiveDuration(duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", duration)
	}
	return nil
}
