package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediastore/internal/config"
	"mediastore/internal/media"
)

func newUploadCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <manifest.yaml>",
		Short: "Upload a batch of survey responses with their media",
		Long: "Upload stores every survey in the manifest in one transaction. Surveys " +
			"or media whose id is already stored are skipped as duplicates; any other " +
			"failure stores nothing.",
		Args: requireExactlyArgs(1, "manifest path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			manifest, err := parseManifest(f)
			f.Close()
			if err != nil {
				return err
			}

			batch, err := manifest.build(filepath.Dir(args[0]))
			if err != nil {
				return err
			}
			defer batch.Close()

			return withService(cfg, opts, func(svc *media.Service) error {
				res, err := svc.UploadSurveys(cmd.Context(), batch.items)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(res)
				}
				return writeBatchResult(res)
			})
		},
	}
}
