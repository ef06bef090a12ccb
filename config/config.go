// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

// Package config is an optional helper for hosts that want to declare
// their providers in a YAML file plus environment overrides rather than
// constructing oidcrp.ProviderConfig literals by hand. The core oidcrp
// package has no dependency on this package — Registry.AddProvider takes
// a plain struct, so a host is free to load configuration any other way.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/oidcrp"
)

// ConfigPathEnvVar overrides the config file search, mirroring the
// host application's own CONFIG_PATH convention.
const ConfigPathEnvVar = "OIDCRP_CONFIG_PATH"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"oidcrp.yaml",
	"oidcrp.yml",
	"/etc/oidcrp/oidcrp.yaml",
}

// Document is the top-level shape of an oidcrp config file: a named list
// of providers, each unmarshaled into an oidcrp.ProviderConfig.
type Document struct {
	Providers []ProviderEntry `koanf:"providers"`
}

// ProviderEntry is one provider's config-file representation. Durations
// are plain strings (e.g. "30s") per koanf/YAML convention; ToProviderConfig
// parses them.
type ProviderEntry struct {
	Name                   string   `koanf:"name"`
	Description            string   `koanf:"description"`
	ClientID               string   `koanf:"client_id" validate:"required"`
	ClientSecret           string   `koanf:"client_secret"`
	ConfigEndpoint         string   `koanf:"config_endpoint" validate:"required,url"`
	LocalEndpoint          string   `koanf:"local_endpoint" validate:"required,url"`
	Scopes                 []string `koanf:"scopes"`
	AllowNoneAlg           bool     `koanf:"allow_none_alg"`
	ClockSkew              string   `koanf:"clock_skew"`
	IatFutureSkew          string   `koanf:"iat_future_skew"`
	JWKSUnknownKidInterval string   `koanf:"jwks_unknown_kid_interval"`
	RequestTimeout         string   `koanf:"request_timeout"`
}

// ToProviderConfig converts a file entry into the oidcrp.ProviderConfig
// the core API consumes, parsing duration strings with sensible
// zero-value fallbacks (the core package applies its own defaults for
// anything left at zero).
func (e ProviderEntry) ToProviderConfig() (oidcrp.ProviderConfig, error) {
	cfg := oidcrp.ProviderConfig{
		Name:           e.Name,
		Description:    e.Description,
		ClientID:       e.ClientID,
		ClientSecret:   e.ClientSecret,
		ConfigEndpoint: e.ConfigEndpoint,
		LocalEndpoint:  e.LocalEndpoint,
		Scopes:         e.Scopes,
		AllowNoneAlg:   e.AllowNoneAlg,
	}

	var err error
	if cfg.ClockSkew, err = parseDuration(e.ClockSkew); err != nil {
		return cfg, fmt.Errorf("oidcrp/config: clock_skew: %w", err)
	}
	if cfg.IatFutureSkew, err = parseDuration(e.IatFutureSkew); err != nil {
		return cfg, fmt.Errorf("oidcrp/config: iat_future_skew: %w", err)
	}
	if cfg.JWKSUnknownKidInterval, err = parseDuration(e.JWKSUnknownKidInterval); err != nil {
		return cfg, fmt.Errorf("oidcrp/config: jwks_unknown_kid_interval: %w", err)
	}
	if cfg.RequestTimeout, err = parseDuration(e.RequestTimeout); err != nil {
		return cfg, fmt.Errorf("oidcrp/config: request_timeout: %w", err)
	}
	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Load reads provider configuration layered defaults < file < env,
// following the teacher's three-layer koanf precedence: defaults first,
// an optional YAML file next, then environment variables win.
//
// Environment variables use the OIDCRP_PROVIDERS_0_CLIENT_ID style koanf
// produces from "." delimited keys; most hosts will only use the file
// layer and this exists mainly for containerized secret injection.
func Load() ([]oidcrp.ProviderConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(&Document{}, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("oidcrp/config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("oidcrp/config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("OIDCRP_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "OIDCRP_")), "_", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("oidcrp/config: load env: %w", err)
	}

	var doc Document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("oidcrp/config: unmarshal: %w", err)
	}

	validate := validator.New()
	out := make([]oidcrp.ProviderConfig, 0, len(doc.Providers))
	for i, entry := range doc.Providers {
		if err := validate.Struct(entry); err != nil {
			return nil, fmt.Errorf("oidcrp/config: provider[%d] %q: %w", i, entry.Name, err)
		}
		cfg, err := entry.ToProviderConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
