package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/pkg/bytesize"
	"github.com/jmylchreest/xtarr/pkg/duration"
)

const maskedValue = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format: defaults, the config
file and XTARR_ environment variables merged. Passwords and tokens are
masked.

With no config file this prints every option with its default value:

  xtarr config dump > config.yaml

Environment variables use the XTARR_ prefix and underscores for nesting.
Example: server.port -> XTARR_SERVER_PORT`,
	RunE: runConfigDump,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: %d inputs, %d targets, %d users\n",
			len(cfg.Inputs), len(cfg.Targets), len(cfg.Users))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd, configValidateCmd)
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	data, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# xtarr configuration")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Duration format: 30s, 5m, 1h, 7d")
	fmt.Fprintln(out, "# Size format: 32KB, 512MB")
	fmt.Fprintln(out)
	_, err = out.Write(data)
	return err
}

var (
	durationType = reflect.TypeFor[time.Duration]()
	sizeType     = reflect.TypeFor[bytesize.Size]()
)

// toMap converts a config struct to nested maps keyed by mapstructure tag,
// formatting durations and sizes the way they are written in config files.
func toMap(v any) map[string]any {
	val := reflect.Indirect(reflect.ValueOf(v))
	typ := val.Type()

	result := make(map[string]any, val.NumField())
	for i := range val.NumField() {
		fieldType := typ.Field(i)
		if !fieldType.IsExported() {
			continue
		}
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}
		if observability.IsRedactedField(key) {
			if !val.Field(i).IsZero() {
				result[key] = maskedValue
			}
			continue
		}
		if value, ok := dumpValue(val.Field(i)); ok {
			result[key] = value
		}
	}
	return result
}

// dumpValue returns the YAML representation of v; ok is false for nil
// pointers, which are left out.
func dumpValue(v reflect.Value) (any, bool) {
	switch v.Type() {
	case durationType:
		return duration.Format(time.Duration(v.Int())), true
	case sizeType:
		return bytesize.Format(bytesize.Size(v.Int())), true
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, false
		}
		return dumpValue(v.Elem())
	case reflect.Struct:
		return toMap(v.Interface()), true
	case reflect.Slice:
		items := make([]any, 0, v.Len())
		for i := range v.Len() {
			if item, ok := dumpValue(v.Index(i)); ok {
				items = append(items, item)
			}
		}
		return items, true
	case reflect.Map:
		entries := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			if observability.IsRedactedField(key) {
				entries[key] = maskedValue
				continue
			}
			entries[key] = iter.Value().Interface()
		}
		return entries, true
	default:
		return v.Interface(), true
	}
}
