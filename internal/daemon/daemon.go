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

package daemon

import (
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"

	"github.com/blinklabs-io/addrspace"
	"github.com/blinklabs-io/addrspace/countries"
	"github.com/blinklabs-io/addrspace/event"
	"github.com/blinklabs-io/addrspace/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run starts the allocator with the loaded config and serves prometheus
// metrics until the process exits
func Run(logger *slog.Logger, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("config: %+v", cfg))
	a, err := NewAllocator(logger, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	// Log resource events as they happen
	for _, eventType := range []event.EventType{
		addrspace.RegionAllocateEventType,
		addrspace.RegionReleaseEventType,
		addrspace.HostAllocateEventType,
		addrspace.HostReleaseEventType,
		addrspace.ReservationCreateEventType,
		addrspace.ReservationConvertEventType,
		addrspace.ReservationExpireEventType,
	} {
		a.EventBus().SubscribeFunc(
			eventType,
			func(evt event.Event) {
				logger.Info(
					fmt.Sprintf("event: %s: %+v", evt.Type, evt.Data),
					"component", "daemon",
				)
			},
		)
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		fmt.Sprintf(
			"daemon: serving prometheus metrics on %s:%d",
			cfg.Metrics.BindAddr,
			cfg.Metrics.Port,
		),
	)
	err = http.ListenAndServe(
		fmt.Sprintf("%s:%d", cfg.Metrics.BindAddr, cfg.Metrics.Port),
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start metrics listener: %w", err)
	}
	return nil
}

// NewAllocator builds an allocator from the daemon config
func NewAllocator(
	logger *slog.Logger,
	cfg *config.Config,
) (*addrspace.Allocator, error) {
	countryTable := countries.DefaultTable()
	if cfg.CountriesFile != "" {
		tmpTable, err := countries.NewTableFromFile(cfg.CountriesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load country table: %w", err)
		}
		countryTable = tmpTable
	}
	opts := []addrspace.ConfigOptionFunc{
		addrspace.WithLogger(logger),
		addrspace.WithCountryTable(countryTable),
		// Enable metrics with default prometheus registry
		addrspace.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		addrspace.WithTracing(cfg.Tracing),
	}
	if cfg.DataDir != "" {
		opts = append(opts, addrspace.WithDataDir(cfg.DataDir))
	}
	if cfg.RegionQuota > 0 {
		opts = append(opts, addrspace.WithDefaultRegionQuota(cfg.RegionQuota))
	}
	if cfg.HostQuota > 0 {
		opts = append(opts, addrspace.WithDefaultHostQuota(cfg.HostQuota))
	}
	if cfg.ReservationTtl > 0 {
		opts = append(
			opts,
			addrspace.WithDefaultReservationTtl(cfg.ReservationTtl),
		)
	}
	if cfg.SweepInterval > 0 {
		opts = append(
			opts,
			addrspace.WithReservationSweepDelay(cfg.SweepInterval),
		)
	}
	return addrspace.New(addrspace.NewConfig(opts...))
}
