// Copyright 2024-2025 Andres Morey
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the broker's scalar settings (bind address,
// timeouts, buffer sizes, logging) via viper+mapstructure+validator.
// The recursive filter/join/exec sections are intentionally not part of
// this struct; see internal/filter, internal/join and internal/execlist,
// which decode those directly off yaml.v3.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// BrokerConfig holds the broker's scalar settings, decoded from a
// "broker:" section and validated with struct tags.
type BrokerConfig struct {
	Broker struct {
		BindAddr              string `mapstructure:"bind-addr" validate:"hostname_port"`
		InactivityTimeoutMS   int    `mapstructure:"inactivity-timeout-ms" validate:"gt=0"`
		ChannelBuffer         int    `mapstructure:"channel-buffer" validate:"gt=0"`
		LoaderBroadcastBuffer int    `mapstructure:"loader-broadcast-buffer" validate:"gt=0"`
	} `mapstructure:"broker"`

	Logging struct {
		Enabled bool   `mapstructure:"enabled"`
		Level   string `mapstructure:"level" validate:"oneof=debug info warn error"`
		Format  string `mapstructure:"format" validate:"oneof=pretty cli json"`
	} `mapstructure:"logging"`
}

// InactivityTimeout is BrokerConfig.Broker.InactivityTimeoutMS as a
// time.Duration.
func (cfg *BrokerConfig) InactivityTimeout() time.Duration {
	return time.Duration(cfg.Broker.InactivityTimeoutMS) * time.Millisecond
}

// validate checks struct tags across the whole config.
func (cfg *BrokerConfig) validate() error {
	return validator.New().Struct(cfg)
}

// DefaultBrokerConfig returns the config used when no file and no flags
// override a given setting.
func DefaultBrokerConfig() *BrokerConfig {
	cfg := &BrokerConfig{}

	cfg.Broker.BindAddr = "localhost:8080"
	cfg.Broker.InactivityTimeoutMS = 3000
	cfg.Broker.ChannelBuffer = 256
	cfg.Broker.LoaderBroadcastBuffer = 256

	cfg.Logging.Enabled = true
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "pretty"

	return cfg
}

// DefaultConfigPath returns ~/.recordbroker/config.<format>.
func DefaultConfigPath(format string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recordbroker", fmt.Sprintf("config.%s", format)), nil
}

// NewBrokerConfig reads configPath (or the default path, if empty) into
// a BrokerConfig via viper, falling back to DefaultBrokerConfig for any
// field the file doesn't set, then validates the result.
func NewBrokerConfig(configPath string, v *viper.Viper) (*BrokerConfig, error) {
	if v == nil {
		v = viper.New()
	}

	hasCustomPath := configPath != ""
	if configPath == "" {
		f, err := DefaultConfigPath("yaml")
		if err != nil {
			return nil, err
		}
		configPath = f
	}

	configBytes, err := os.ReadFile(configPath)
	if err != nil && (hasCustomPath || !os.IsNotExist(err)) {
		return nil, err
	}

	if len(configBytes) > 0 {
		configBytes = []byte(os.ExpandEnv(string(configBytes)))

		if len(filepath.Ext(configPath)) <= 1 {
			return nil, fmt.Errorf("file %q must have a valid extension (e.g., .yaml, .json)", configPath)
		}

		v.SetConfigType(filepath.Ext(configPath)[1:])
		if err := v.ReadConfig(bytes.NewBuffer(configBytes)); err != nil {
			return nil, err
		}
	}

	cfg := DefaultBrokerConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
