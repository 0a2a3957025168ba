package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses value, or defaultValue when value is blank.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", candidate)
	}
	return d, nil
}
