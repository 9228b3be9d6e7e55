package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediastore/internal/config"
	"mediastore/internal/media"
	"mediastore/internal/models"
)

func newSweepCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var (
		apply bool
		grace time.Duration
		kinds []string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Find and remove files no stored row references",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]models.MediaKind, 0, len(kinds))
			for _, raw := range kinds {
				kind, err := models.ParseMediaKind(raw)
				if err != nil {
					return err
				}
				filter = append(filter, kind)
			}
			if grace == 0 {
				grace = cfg.Storage.SweepGrace.Duration
			}
			if grace < 0 {
				return fmt.Errorf("--grace must not be negative")
			}

			return withService(cfg, opts, func(svc *media.Service) error {
				res, err := svc.Sweep(cmd.Context(), media.SweepOptions{Apply: apply, Grace: grace, Kinds: filter})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(res)
				}
				return writeSweepResult(res)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete orphan files (default: dry run)")
	cmd.Flags().DurationVar(&grace, "grace", 0, "skip files newer than this (default: storage.sweep_grace)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "limit the sweep to these media kinds")
	return cmd
}

func newCheckCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report stored rows whose files are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, opts, func(svc *media.Service) error {
				res, err := svc.Check(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					if err := writeJSON(res); err != nil {
						return err
					}
				} else if err := writeCheckResult(res); err != nil {
					return err
				}
				if len(res.Missing) > 0 {
					return fmt.Errorf("%d stored files are missing", len(res.Missing))
				}
				return nil
			})
		},
	}
}

func newTreeCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show occupancy of every media tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, opts, func(svc *media.Service) error {
				stats, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(stats)
				}
				return writeTreeStats(stats)
			})
		},
	}
}
