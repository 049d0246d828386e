package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/docsync/internal/config"
)

const configFileName = "config"

// flag name to config key
var flagKeys = map[string]string{
	"dir":         "base_dir",
	"store":       "store",
	"backend":     "backend",
	"endpoint":    "endpoint",
	"include":     "include",
	"exclude":     "exclude",
	"delete":      "delete",
	"concurrency": "concurrency",
	"dry-run":     "dry_run",
	"yes":         "yes",
	"log-level":   "log_level",
}

// loadConfig merges defaults, the config file, DOCSYNC_* env vars and flags,
// in increasing order of precedence, and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return mergeConfig(cmd, true)
}

// mergeConfig is loadConfig with an optional explicit file. init points
// --config at a file it is about to create.
func mergeConfig(cmd *cobra.Command, requireFile bool) (*config.Config, error) {
	v := viper.New()
	setDefaults(v)

	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".docsync"))
		v.AddConfigPath(filepath.Join(home, ".config", "docsync"))
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, &config.Error{Key: "file", Reason: fmt.Sprintf("cannot read '%s'", v.ConfigFileUsed()), Err: err}
		}
		if requireFile && cmd.Flag("config").Changed {
			return nil, &config.Error{Key: "file", Reason: "config file not found", Err: err}
		}
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix("DOCSYNC")
	v.AutomaticEnv()

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &config.Error{Key: "file", Reason: "cannot decode", Err: err}
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so env vars resolve during Unmarshal.
func setDefaults(v *viper.Viper) {
	def := config.Default()
	v.SetDefault("base_dir", def.BaseDir)
	v.SetDefault("store", "")
	v.SetDefault("backend", string(def.Backend))
	v.SetDefault("endpoint", "")
	v.SetDefault("api_key", "")
	v.SetDefault("s3_prefix", "")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("include", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("delete", def.Delete)
	v.SetDefault("concurrency", def.Concurrency)
	v.SetDefault("max_attempts", def.MaxAttempts)
	v.SetDefault("base_delay", def.BaseDelay)
	v.SetDefault("breaker_threshold", def.BreakerThreshold)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("dry_run", false)
	v.SetDefault("yes", false)
}
