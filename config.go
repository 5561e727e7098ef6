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

package addrspace

import (
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/addrspace/countries"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultRegionQuota           = 64
	defaultHostQuota             = 1024
	defaultReservationTtl        = 24 * time.Hour
	defaultReservationSweepDelay = 1 * time.Minute
)

type Config struct {
	dataDir               string
	logger                *slog.Logger
	countryTable          *countries.Table
	promRegistry          prometheus.Registerer
	defaultRegionQuota    uint
	defaultHostQuota      uint
	defaultReservationTtl time.Duration
	reservationSweepDelay time.Duration
	tracing               bool
	tracingStdout         bool
}

// ConfigOptionFunc is a type that represents functions that modify the Allocator config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new allocator config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:                slog.New(slog.NewJSONHandler(io.Discard, nil)),
		countryTable:          countries.DefaultTable(),
		defaultRegionQuota:    defaultRegionQuota,
		defaultHostQuota:      defaultHostQuota,
		defaultReservationTtl: defaultReservationTtl,
		reservationSweepDelay: defaultReservationSweepDelay,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithCountryTable specifies the country block table to use. This defaults to the builtin table
func WithCountryTable(table *countries.Table) ConfigOptionFunc {
	return func(c *Config) {
		c.countryTable = table
	}
}

// WithPrometheusRegistry specifies the prometheus registry to register metrics with. Metrics
// are not registered by default
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDefaultRegionQuota specifies the region ceiling applied to users without an explicit quota
func WithDefaultRegionQuota(quota uint) ConfigOptionFunc {
	return func(c *Config) {
		c.defaultRegionQuota = quota
	}
}

// WithDefaultHostQuota specifies the host ceiling applied to users without an explicit quota
func WithDefaultHostQuota(quota uint) ConfigOptionFunc {
	return func(c *Config) {
		c.defaultHostQuota = quota
	}
}

// WithDefaultReservationTtl specifies the TTL applied to reservations that don't provide one
func WithDefaultReservationTtl(ttl time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.defaultReservationTtl = ttl
	}
}

// WithReservationSweepDelay specifies how often expired reservations are swept. The sweep is
// advisory cleanup; expired reservations stop occupying their coordinate regardless
func WithReservationSweepDelay(delay time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.reservationSweepDelay = delay
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}
