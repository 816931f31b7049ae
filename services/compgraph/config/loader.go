// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/symbols"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = ".compgraph"
	configType = "yaml"
	envPrefix  = "COMPGRAPH"
)

// Load reads the configuration.
//
// Description:
//
//	When path is empty, .compgraph.yaml is searched in the working
//	directory and then $HOME; a missing file is not an error. Environment
//	variables use the COMPGRAPH_ prefix with "_" for nesting, e.g.
//	COMPGRAPH_ANALYSIS_WORKERS. Flags listed in flagKeys override every
//	other source when the user set them, e.g. --log-level sets log.level.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Wraps ErrInvalidConfig on validation failure.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path, flags)
}

// LoadFs is Load reading configuration files from fsys.
func LoadFs(fsys afero.Fs, path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetFs(fsys)
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"workers":          "analysis.workers",
	"include":          "analysis.include",
	"exclude":          "analysis.exclude",
	"infer-arrows":     "analysis.infer_arrow_components",
	"count-spread":     "analysis.count_spread_props",
	"unresolved":       "analysis.unresolved_policy",
	"external":         "analysis.external_policy",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"addr":             "server.addr",
	"snapshot-dir":     "snapshot.dir",
	"trace-exporter":   "telemetry.trace_exporter",
	"metric-exporter":  "telemetry.metric_exporter",
	"otlp-endpoint":    "telemetry.otlp_endpoint",
	"debounce":         "watch.debounce",
	"max-follow-depth": "analysis.max_follow_depth",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("analysis.workers", 0)
	v.SetDefault("analysis.facts_cache_size", symbols.DefaultFactsCacheSize)
	v.SetDefault("analysis.max_follow_depth", DefaultMaxFollowDepth)
	v.SetDefault("analysis.max_components", graph.DefaultMaxComponents)
	v.SetDefault("analysis.include", []string{})
	v.SetDefault("analysis.exclude", []string{})
	v.SetDefault("analysis.infer_arrow_components", false)
	v.SetDefault("analysis.count_spread_props", true)
	v.SetDefault("analysis.ignored_tags", []string{})
	v.SetDefault("analysis.unresolved_policy", "same-file")
	v.SetDefault("analysis.external_policy", "placeholder")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	v.SetDefault("server.addr", DefaultServerAddr)

	v.SetDefault("snapshot.dir", DefaultSnapshotDir)

	v.SetDefault("telemetry.service_name", DefaultServiceName)
	v.SetDefault("telemetry.trace_exporter", "none")
	v.SetDefault("telemetry.metric_exporter", "prometheus")
	v.SetDefault("telemetry.otlp_endpoint", "")

	v.SetDefault("watch.debounce", DefaultWatchDebounce)
}
