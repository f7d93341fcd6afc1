package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jeeftor/qmp-macro/internal/constants"
	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/styles"
	"github.com/jeeftor/qmp-macro/internal/utils"
)

var configForce bool

// configDefaults lists every configuration key with its default value
func configDefaults() map[string]interface{} {
	return map[string]interface{}{
		"log_level":                   "info",
		"log_file":                    "",
		"socket":                      "",
		"images_dir":                  "images",
		"engine.max_call_depth":       constants.DefaultMaxCallDepth,
		"engine.event_buffer":         constants.EventBufferSize,
		"vision.tolerance":            constants.DefaultTolerance,
		"vision.default_confidence":   constants.DefaultConfidence,
		"pointer.hold_ms":             50,
		"screenshot.remote_temp_path": "",
	}
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create qmp-macro configuration",
	Long: `Configuration files are searched in this order:
1. ./.qmp-macro.yaml (project config)
2. ~/.qmp-macro.yaml (user config)
3. /etc/qmp-macro/.qmp-macro.yaml (system config)

Environment variables (QMP_MACRO_*, dots become underscores) override config
file values. Command-line flags override both.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := out(cmd)
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(w, "%s %s\n\n", styles.KeyStyle.Render("Config file:"), used)
		} else {
			fmt.Fprintf(w, "%s\n\n", styles.MutedStyle.Render("No config file found; using defaults and environment"))
		}

		keys := make([]string, 0)
		for k := range configDefaults() {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s = %s\n", styles.KeyStyle.Render(k), styles.ValueStyle.Render(fmt.Sprint(viper.Get(k))))
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [config-file]",
	Short: "Write a configuration file holding the defaults",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ".qmp-macro.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		if !configForce {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}

		data, err := yaml.Marshal(nestedDefaults())
		if err != nil {
			return err
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return utils.FileSystemError("create directory", dir, err)
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return utils.FileSystemError("write", path, err)
		}
		logging.SaveFile(path, "")
		return nil
	},
}

// nestedDefaults turns dotted keys into the nested maps a YAML file uses
func nestedDefaults() map[string]interface{} {
	root := make(map[string]interface{})
	for key, v := range configDefaults() {
		parts := strings.Split(key, ".")
		m := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := m[p].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				m[p] = child
			}
			m = child
		}
		m[parts[len(parts)-1]] = v
	}
	return root
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
