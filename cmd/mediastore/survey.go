package main

import (
	"github.com/spf13/cobra"

	"mediastore/internal/config"
	"mediastore/internal/media"
)

func newSurveyCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "survey",
		Short: "Inspect and remove survey responses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a survey response and its prompts",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, opts, func(svc *media.Service) error {
				sr, err := svc.GetSurveyResponse(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(sr)
				}
				return writeSurveyDetail(sr)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a survey response and its media",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, opts, func(svc *media.Service) error {
				if err := svc.DeleteSurveyResponse(cmd.Context(), args[0]); err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(map[string]string{"id": args[0], "status": "deleted"})
				}
				return writePlain("deleted %s\n", args[0])
			})
		},
	})
	return cmd
}
