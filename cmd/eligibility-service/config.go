package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAPIHost   = "0.0.0.0"
	defaultAPIPort   = 9090
	defaultLogLevel  = "info"
	defaultLogOutput = "stdout"
	defaultDatadir   = ".eligibility" // Will be prefixed with user's home directory

	// pepperEnvVar is the only channel through which the pepper may enter
	// the process. There is deliberately no flag for it: flags leak into
	// process listings and shell history.
	pepperEnvVar = "ELIGIBILITY_PEPPER"
)

// Config holds the application configuration.
type Config struct {
	API     APIConfig
	Admin   AdminConfig
	Log     LogConfig
	Datadir string
	Salt    string
	Roll    string
}

// APIConfig holds the API-specific configuration.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AdminConfig gates the administrative operations.
type AdminConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and
// defaults.
func loadConfig() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("admin.enabled", false)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	flag.StringP("salt", "s", "", "distributable salt mixed into every commitment (required)")
	flag.StringP("roll", "r", "", "authorized roll JSON file to build the registry from on startup")
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.Bool("admin.enabled", false, "enable the administrative endpoints (rebuild, reset, export)")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for the database")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "eligibility-service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: eligibility-service [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, ELIGIBILITY_SALT or ELIGIBILITY_API_PORT\n")
		fmt.Fprintf(os.Stderr, "\nThe pepper has no flag: it is read from %s only.\n", pepperEnvVar)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Build the registry from a roll and start serving\n")
		fmt.Fprintf(os.Stderr, "  %s=... eligibility-service --salt=election-2026 --roll=roll.json\n", pepperEnvVar)
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("ELIGIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration.
func validateConfig(cfg *Config) error {
	if cfg.Salt == "" {
		return fmt.Errorf("salt is required (use --salt flag or ELIGIBILITY_SALT environment variable)")
	}
	if os.Getenv(pepperEnvVar) == "" {
		return fmt.Errorf("pepper is required (set the %s environment variable)", pepperEnvVar)
	}
	return nil
}
