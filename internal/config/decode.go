package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/jmylchreest/xtarr/pkg/bytesize"
	"github.com/jmylchreest/xtarr/pkg/duration"
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	sizeType     = reflect.TypeFor[bytesize.Size]()
)

// decodeHook converts strings from files and the environment into
// durations ("7d", "90s"), byte sizes ("32KiB") and comma-separated lists.
// It replaces viper's default hooks, so it covers the same conversions.
func decodeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)

	switch {
	case to == durationType:
		if s == "" {
			return time.Duration(0), nil
		}
		return duration.Parse(s)
	case to == sizeType:
		if s == "" {
			return bytesize.Size(0), nil
		}
		return bytesize.Parse(s)
	case to.Kind() == reflect.Slice && to.Elem().Kind() == reflect.String:
		if s == "" {
			return []string{}, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	return data, nil
}
