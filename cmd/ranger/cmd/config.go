/*
 * MIT License
 *
 * Copyright (c) 2022-2024  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/log"
)

const envPrefix = "RANGER"

// Config is the command configuration. Every field can be set from a flag,
// from a RANGER_ prefixed environment variable or from the configuration file,
// in that order of precedence.
type Config struct {
	Connection      string            `mapstructure:"connection"`
	Namespace       string            `mapstructure:"namespace"`
	Service         string            `mapstructure:"service"`
	LogLevel        string            `mapstructure:"log-level"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Interval        time.Duration     `mapstructure:"interval"`
	StaleThreshold  time.Duration     `mapstructure:"stale-threshold"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown-timeout"`
	HealthAddresses []string          `mapstructure:"health-address"`
	Metadata        map[string]string `mapstructure:"metadata"`
	Healthy         bool              `mapstructure:"healthy"`
	Select          bool              `mapstructure:"select"`
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return config, nil
}

// Validate checks the settings shared by every command
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("connection", c.Connection)).
		AddValidator(validation.NewEmptyStringValidator("namespace", c.Namespace)).
		AddValidator(validation.NewEmptyStringValidator("service", c.Service)).
		AddAssertion(log.ParseLevel(c.LogLevel) != log.InvalidLevel, fmt.Sprintf("invalid log level=(%s)", c.LogLevel)).
		Validate()
}

func (c *Config) logger(cmd *cobra.Command) log.Logger {
	return log.NewZap(log.ParseLevel(c.LogLevel), cmd.ErrOrStderr())
}
