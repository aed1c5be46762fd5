package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/vidpipe/internal/config"
)

const redacted = "[REDACTED]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML: defaults, overlaid by the config
file, overlaid by VIDPIPE_ environment variables. Secrets are redacted.

Redirect the output to create a configuration template:

  vidpipe config dump > config.yaml

Environment variables use the VIDPIPE_ prefix and underscores for nesting.
Example: heal.schedule -> VIDPIPE_HEAL_SCHEDULE`,
	Args: cobra.NoArgs,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(toMap(appConfig))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# vidpipe configuration")
	fmt.Fprintln(out, "# Durations: 30s, 5m, 1h, 6d. Sizes: 5MB, 10GiB.")
	fmt.Fprintln(out)
	_, err = out.Write(data)
	return err
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations and sizes in their readable form and secrets redacted.
func toMap(v any) map[string]any {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	result := make(map[string]any, val.NumField())
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}

		key := sf.Tag.Get("mapstructure")
		if key == "" {
			key = sf.Name
		}

		if sf.Tag.Get("masq") == "secret" {
			if !field.IsZero() {
				result[key] = redacted
			} else {
				result[key] = ""
			}
			continue
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case config.Duration:
			result[key] = fv.String()
		case config.ByteSize:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(fv)
			} else {
				result[key] = fv
			}
		}
	}
	return result
}
