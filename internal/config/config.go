// Copyright 2024 Blink Labs Software
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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DataDir        string        `split_words:"true" yaml:"dataDir"`
	CountriesFile  string        `split_words:"true" yaml:"countriesFile"`
	Metrics        MetricsConfig
	RegionQuota    uint          `split_words:"true" yaml:"regionQuota"`
	HostQuota      uint          `split_words:"true" yaml:"hostQuota"`
	ReservationTtl time.Duration `split_words:"true" yaml:"reservationTtl"`
	SweepInterval  time.Duration `split_words:"true" yaml:"sweepInterval"`
	Tracing        bool
}

type MetricsConfig struct {
	BindAddr string `yaml:"bindAddr"`
	Port     uint
}

var globalConfig = &Config{
	Metrics: MetricsConfig{
		BindAddr: "127.0.0.1",
		Port:     12790,
	},
}

func LoadConfig(configFile string) (*Config, error) {
	// Load YAML config if provided
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(f)
		// Require all fields provided in YAML to exist in our target object
		dec.KnownFields(true)
		if err := dec.Decode(&globalConfig); err != nil {
			return nil, err
		}
	}
	// Load environment variables
	err := envconfig.Process("addrspace", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+v", err)
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
