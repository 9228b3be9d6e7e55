package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediastore/internal/config"
)

type rootOptions struct {
	jsonOutput  bool
	logLevel    string
	metricsFile string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mediastore",
		Short:         "Mediastore keeps survey media and documents in bounded directory trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(opts.logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if opts.metricsFile == "" {
				opts.metricsFile = cfg.MetricsFile
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, optionally per component: warn,dirtree=debug")
	cmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	cmd.AddCommand(
		newDocCmd(cfg, opts),
		newUploadCmd(cfg, opts),
		newSurveyCmd(cfg, opts),
		newBlobCmd(cfg, opts),
		newSweepCmd(cfg, opts),
		newCheckCmd(cfg, opts),
		newTreeCmd(cfg, opts),
		newMigrateCmd(cfg, opts),
		newConfigCmd(cfg),
	)

	return cmd
}
