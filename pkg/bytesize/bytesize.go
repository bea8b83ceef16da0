// Package bytesize parses and formats byte sizes written in configuration
// files. Units are binary: "1KB" and "1KiB" are both 1024 bytes.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a number of bytes.
type Size int64

// Binary size units.
const (
	B  Size = 1
	KB Size = 1 << 10
	MB Size = 1 << 20
	GB Size = 1 << 30
	TB Size = 1 << 40
)

var units = map[string]Size{
	"": B, "b": B,
	"k": KB, "kb": KB, "kib": KB,
	"m": MB, "mb": MB, "mib": MB,
	"g": GB, "gb": GB, "gib": GB,
	"t": TB, "tb": TB, "tib": TB,
}

// formatUnits is ordered largest first.
var formatUnits = []struct {
	size   Size
	suffix string
}{
	{TB, "TB"},
	{GB, "GB"},
	{MB, "MB"},
	{KB, "KB"},
}

// Parse parses a size such as "32KiB", "1.5 GB" or "1024". A bare number
// is a byte count.
func Parse(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if end < 0 {
		end = len(s)
	}
	if end == 0 {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", s[:end], err)
	}

	unit, ok := units[strings.ToLower(strings.TrimSpace(s[end:]))]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit in %q", s)
	}
	return Size(value * float64(unit)), nil
}

// Format renders s in the largest unit it fills at least once, with up to
// two decimals: 1536 becomes "1.5KB".
func Format(s Size) string {
	if s < 0 {
		return "-" + Format(-s)
	}
	for _, u := range formatUnits {
		if s >= u.size {
			v := strconv.FormatFloat(float64(s)/float64(u.size), 'f', 2, 64)
			v = strings.TrimRight(strings.TrimRight(v, "0"), ".")
			return v + u.suffix
		}
	}
	return strconv.FormatInt(int64(s), 10) + "B"
}

// Int64 returns the size in bytes.
func (s Size) Int64() int64 {
	return int64(s)
}

func (s Size) String() string {
	return Format(s)
}
