// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package config defines the hydroplant controller configuration schema and
// helpers for loading and validating config files.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist at the given path.
var ErrConfigNotFound = errors.New("hydroplant config not found")

// ReconnectMode controls what happens to actuator state across a reconnect
// to the broker.
type ReconnectMode string

const (
	ReconnectOff         ReconnectMode = "off"
	ReconnectRestoreZero ReconnectMode = "restore-zero"
	ReconnectRestoreLast ReconnectMode = "restore-last"
)

// Config is the top-level hydroplant controller configuration.
type Config struct {
	Broker      BrokerConfig      `yaml:"broker" validate:"required"`
	Persistence PersistenceConfig `yaml:"persistence" validate:"required"`
	Autonomy    AutonomyConfig    `yaml:"autonomy"`
}

// BrokerConfig describes the MQTT broker connection.
type BrokerConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required,gt=0,lte=65535"`
	ClientID string `yaml:"client_id" validate:"required"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// PersistenceConfig describes the Postgres connection used for state and
// measurement storage.
type PersistenceConfig struct {
	DSN string `yaml:"dsn" validate:"required"`
}

// AutonomyConfig tunes the scheduler's tick rate and daylight window.
type AutonomyConfig struct {
	TickIntervalSeconds  float64       `yaml:"tick_interval_seconds" validate:"gt=0"`
	IntervalCheckSeconds float64       `yaml:"interval_check_seconds" validate:"gte=0"`
	DayWindow            DayWindow     `yaml:"day_window"`
	ReconnectRestore     ReconnectMode `yaml:"reconnect_restore" validate:"omitempty,oneof=off restore-zero restore-last"`
}

// DayWindow bounds the hours during which lighting actuators should be lit.
type DayWindow struct {
	StartHour int `yaml:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int `yaml:"end_hour" validate:"gte=0,lte=23"`
}

// DefaultConfigPath returns the default config path for the current working directory.
func DefaultConfigPath() string {
	return "hydroplant.yml"
}

// Exists reports whether a config file exists at the given path.
// It returns (false, nil) if the file does not exist.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// Load reads, defaults, and validates the config from the given path.
//
// It returns ErrConfigNotFound if the file does not exist.
func Load(path string) (*Config, error) {
	exists, err := Exists(path)
	if err != nil {
		return nil, fmt.Errorf("checking config existence: %w", err)
	}

	if !exists {
		return nil, ErrConfigNotFound
	}

	// nolint:gosec // G304: reading config file from user-specified path is expected behavior
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a Config populated with the scheduler defaults used when a
// config file omits the autonomy section.
func Default() Config {
	return Config{
		Autonomy: AutonomyConfig{
			TickIntervalSeconds:  1.0,
			IntervalCheckSeconds: 60,
			DayWindow:            DayWindow{StartHour: 7, EndHour: 21},
			ReconnectRestore:     ReconnectOff,
		},
	}
}

func validateConfig(cfg *Config) error {
	v := validator.New()

	if cfg.Autonomy.ReconnectRestore == "" {
		cfg.Autonomy.ReconnectRestore = ReconnectOff
	}

	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if cfg.Autonomy.DayWindow.StartHour >= cfg.Autonomy.DayWindow.EndHour {
		return fmt.Errorf("config: autonomy.day_window.start_hour must be before end_hour")
	}

	return nil
}
