// Package duration parses and formats durations with day and week units,
// as written in configuration files ("7d", "1w2d12h", "90s").
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Day is 24 hours.
	Day = 24 * time.Hour
	// Week is 7 days.
	Week = 7 * Day
)

// Parse parses s as a Go duration extended with "d" and "w" units. Day and
// week components must come first: "1w2d3h" is valid, "3h2d" is not.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	rest, negative := strings.CutPrefix(s, "-")
	var extended time.Duration

	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			break
		}

		var unit time.Duration
		switch rest[i] {
		case 'd':
			unit = Day
		case 'w':
			unit = Week
		}
		if unit == 0 {
			break
		}

		n, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid number in %q", s)
		}
		extended += time.Duration(n) * unit
		rest = rest[i+1:]
	}

	var d time.Duration
	if rest != "" {
		var err error
		if d, err = time.ParseDuration(rest); err != nil {
			return 0, fmt.Errorf("duration: %w", err)
		}
		if d < 0 {
			return 0, fmt.Errorf("duration: misplaced sign in %q", s)
		}
	}

	d += extended
	if negative {
		d = -d
	}
	return d, nil
}

// Format renders d with the largest whole units, omitting zero components:
// 36h becomes "1d12h", 90m becomes "1h30m". Sub-second precision is kept.
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}

	units := []struct {
		size   time.Duration
		suffix string
	}{
		{Week, "w"},
		{Day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
	}
	for _, u := range units {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.suffix)
			d -= n * u.size
		}
	}
	if d > 0 {
		// Seconds and below, in Go's own notation ("1.5s", "250ms").
		b.WriteString(d.String())
	}
	return b.String()
}
