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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/blinklabs-io/addrspace"
	"github.com/blinklabs-io/addrspace/internal/config"
	"github.com/blinklabs-io/addrspace/internal/daemon"
	"github.com/blinklabs-io/addrspace/internal/version"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

const (
	programName = "addrspace"
)

func newAllocator(
	logger *slog.Logger,
	configFile string,
) (*addrspace.Allocator, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	return daemon.NewAllocator(logger, cfg)
}

func main() {
	globalFlags := struct {
		version    bool
		debug      bool
		configFile string
	}{}

	rootCmd := &cobra.Command{
		Use: programName,
		Run: func(cmd *cobra.Command, args []string) {
			if globalFlags.version {
				fmt.Printf("%s %s\n", programName, version.GetVersionString())
				os.Exit(0)
			}
			_ = cmd.Help()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.version, "version", "", false, "show version and exit")
	rootCmd.PersistentFlags().
		StringVarP(&globalFlags.configFile, "config", "c", "", "path to config file")

	newLogger := func() *slog.Logger {
		logLevel := slog.LevelInfo
		if globalFlags.debug {
			logLevel = slog.LevelDebug
		}
		logger := slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: logLevel,
			}),
		)
		slog.SetDefault(logger)
		return logger
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the allocator daemon",
		Run: func(cmd *cobra.Command, args []string) {
			logger := newLogger()
			logger.Info(
				fmt.Sprintf(
					"running: %s version %s",
					programName,
					version.GetVersionString(),
				),
			)
			if err := daemon.Run(logger, globalFlags.configFile); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}

	var verifyFrom, verifyTo string
	verifyCmd := &cobra.Command{
		Use:   "verify <user-id>",
		Short: "verify a user's audit chain integrity",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := newLogger()
			a, err := newAllocator(logger, globalFlags.configFile)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer a.Close()
			var from, to time.Time
			if verifyFrom != "" {
				from, err = time.Parse(time.RFC3339, verifyFrom)
				if err != nil {
					slog.Error(fmt.Sprintf("invalid --from: %s", err))
					os.Exit(1)
				}
			}
			if verifyTo != "" {
				to, err = time.Parse(time.RFC3339, verifyTo)
				if err != nil {
					slog.Error(fmt.Sprintf("invalid --to: %s", err))
					os.Exit(1)
				}
			}
			report, err := a.VerifyIntegrity(args[0], from, to)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf("records checked: %d\n", report.TotalChecked)
			if report.Ok() {
				fmt.Println("chain intact")
				return
			}
			for _, auditId := range report.CorruptedRecords {
				fmt.Printf("corrupted record: %s\n", auditId)
			}
			for _, auditId := range report.MissingHashes {
				fmt.Printf("broken chain link at: %s\n", auditId)
			}
			os.Exit(1)
		},
	}
	verifyCmd.Flags().
		StringVar(&verifyFrom, "from", "", "start of time range (RFC3339)")
	verifyCmd.Flags().
		StringVar(&verifyTo, "to", "", "end of time range (RFC3339)")

	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "inspect and set user quotas",
	}
	quotaGetCmd := &cobra.Command{
		Use:   "get <user-id>",
		Short: "show a user's quota and usage",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := newLogger()
			a, err := newAllocator(logger, globalFlags.configFile)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer a.Close()
			quota, err := a.GetQuota(args[0])
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf(
				"regions: %d/%d\nhosts: %d/%d\n",
				quota.RegionCount,
				quota.RegionQuota,
				quota.HostCount,
				quota.HostQuota,
			)
		},
	}
	quotaSetCmd := &cobra.Command{
		Use:   "set <user-id> <region-quota> <host-quota>",
		Short: "set a user's quota ceilings",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			logger := newLogger()
			regionQuota, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				slog.Error(fmt.Sprintf("invalid region quota: %s", err))
				os.Exit(1)
			}
			hostQuota, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil {
				slog.Error(fmt.Sprintf("invalid host quota: %s", err))
				os.Exit(1)
			}
			a, err := newAllocator(logger, globalFlags.configFile)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer a.Close()
			quota, err := a.SetQuota(
				args[0],
				uint(regionQuota),
				uint(hostQuota),
				"cli",
			)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf(
				"regions: %d/%d\nhosts: %d/%d\n",
				quota.RegionCount,
				quota.RegionQuota,
				quota.HostCount,
				quota.HostQuota,
			)
		},
	}
	quotaCmd.AddCommand(quotaGetCmd, quotaSetCmd)

	rootCmd.AddCommand(serveCmd, verifyCmd, quotaCmd)

	// Execute cobra command
	if err := rootCmd.Execute(); err != nil {
		// NOTE: we purposely don't display the error, since cobra will have already displayed it
		os.Exit(1)
	}
}
