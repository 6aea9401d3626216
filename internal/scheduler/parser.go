package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Bounds for "every" interval schedules. Pruning more than once a minute
// only contends with writers. Raw "@every" descriptors are not bounded.
const (
	MinInterval = time.Minute
	MaxInterval = 365 * 24 * time.Hour
)

// cronParser accepts 5 or 6 field expressions and @descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var intervalUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseSchedule parses a retention schedule:
//   - cron expressions with 5 or 6 fields: "0 3 * * *"
//   - descriptors: "@daily", "@every 6h"
//   - intervals: "every 30m", "every 2 days"
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schedule expression cannot be empty")
	}

	if fields := strings.Fields(strings.ToLower(expr)); fields[0] == "every" {
		interval, err := parseInterval(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid interval expression %q: %w", expr, err)
		}
		return cron.Every(interval), nil
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// parseInterval reads "5m", "2d" or "2 days".
func parseInterval(fields []string) (time.Duration, error) {
	var d time.Duration
	switch len(fields) {
	case 1:
		if days, ok := strings.CutSuffix(fields[0], "d"); ok {
			n, err := strconv.Atoi(days)
			if err != nil {
				return 0, fmt.Errorf("expected 'every <number><unit>'")
			}
			d = time.Duration(n) * 24 * time.Hour
			break
		}
		parsed, err := time.ParseDuration(fields[0])
		if err != nil {
			return 0, fmt.Errorf("expected 'every <number><unit>'")
		}
		d = parsed
	case 2:
		n, err := strconv.Atoi(fields[0])
		unit, known := intervalUnits[fields[1]]
		if err != nil || !known {
			return 0, fmt.Errorf("expected 'every <number> <unit>'")
		}
		d = time.Duration(n) * unit
	default:
		return 0, fmt.Errorf("expected 'every <number> <unit>'")
	}
	return d, checkInterval(d)
}

func checkInterval(d time.Duration) error {
	switch {
	case d <= 0:
		return fmt.Errorf("interval must be positive")
	case d < MinInterval:
		return fmt.Errorf("interval must be at least %s", MinInterval)
	case d > MaxInterval:
		return fmt.Errorf("interval cannot exceed %s", MaxInterval)
	}
	return nil
}

// ValidateSchedule reports whether expr is a usable retention schedule.
func ValidateSchedule(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}

// NextRun returns when the schedule next fires after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
