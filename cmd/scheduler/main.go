/*
main.go - Application entry point

PURPOSE:
  Command line of the shift scheduler. The serve command runs the HTTP API
  in front of the calendar core; the other commands run one operation
  against the vendor platform and exit.

COMMANDS:
  serve        Start the HTTP API with periodic refresh
  refresh      Load one week and print its counts
  publish      Publish the unpublished shifts of one week
  copy-week    Copy one week's shifts to the following week
  runs         List recent publish/copy runs
  cache clear  Drop cached employees and tags

GLOBAL FLAGS:
  --config     YAML config path (default: scheduler.yaml, created if missing)
  --log-level  Overrides log_level from the config
  --console    Human-readable log output

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the periodic refresh
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the refresh coordinator and the database

ENVIRONMENT:
  SCHEDULER_* variables override the config file, see config/config.go.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration layer
  - refresh/coordinator.go: Refresh gate
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/config"
	"github.com/warp/shift-scheduler/logging"
)

var (
	configPath string
	logLevel   string
	console    bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scheduler",
		Short:         "Shift scheduling calendar backed by the vendor platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				c.LogLevel = logLevel
			}
			l, err := logging.New(c.LogLevel, console)
			if err != nil {
				return err
			}
			cfg, logger = c, l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "scheduler.yaml", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&console, "console", false, "human-readable log output")

	root.AddCommand(
		newServeCmd(),
		newRefreshCmd(),
		newPublishCmd(),
		newCopyWeekCmd(),
		newRunsCmd(),
		newCacheCmd(),
	)
	return root
}
