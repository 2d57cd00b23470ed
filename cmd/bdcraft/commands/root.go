package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/moolen/bdcraft/internal/config"
	"github.com/moolen/bdcraft/internal/logging"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string
)

var rootCmd = &cobra.Command{
	Use:   "bdcraft",
	Short: "bdcraft - component runtime kernel",
	Long: `bdcraft hosts feature components: it resolves their dependency order,
drives their lifecycle, owns the shared expiring caches and the in-process
event bus they use to talk to each other.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Supports per-package log levels: --log-level debug --log-level cache.registry=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level cache.*=debug --log-level events.bus=warn")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the kernel config file (defaults are used when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig returns the config at path, or the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// setupLog initializes logging from the config file's log_levels, then
// environment variables, then --log-level flags, later sources winning.
func setupLog(cfg *config.Config, flags []string, flagsSet bool) error {
	var merged []string
	if cfg != nil {
		merged = append(merged, cfg.LogLevels...)
	}
	if flagsSet {
		merged = append(merged, flags...)
	}
	defaultLevel, packageLevels, err := parseLogLevelFlags(merged)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses level entries and LOG_LEVEL_* environment variables.
// Entries override environment variables.
//
// Entry format: ["debug"], ["default=info", "cache.registry=debug"]
// Env vars: LOG_LEVEL_CACHE_REGISTRY=debug (package name uppercased, dots to underscores)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		key, level, ok := strings.Cut(envPair, "=")
		if !ok {
			continue
		}
		result[convertEnvKeyToPackageName(key)] = level
	}

	for _, flag := range flags {
		pkg, level, ok := strings.Cut(flag, "=")
		if !ok {
			result["default"] = flag
			continue
		}
		result[pkg] = level
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if _, err := logging.ParseLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if _, err := logging.ParseLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_CACHE_REGISTRY -> cache.registry
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bdcraft version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bdcraft v%s\n", Version)
	},
}
