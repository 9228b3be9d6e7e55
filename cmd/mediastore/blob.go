package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"mediastore/internal/blobstore"
	"mediastore/internal/config"
	"mediastore/internal/media"
	"mediastore/internal/models"
)

func newBlobCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Read or replace stored media by blob id",
	}
	cmd.AddCommand(newBlobCatCmd(cfg, opts), newBlobReplaceCmd(cfg, opts))
	return cmd
}

func newBlobCatCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var scaled bool

	cmd := &cobra.Command{
		Use:   "cat <id>",
		Short: "Write a blob's content to stdout",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			suffix := ""
			if scaled {
				suffix = models.VariantScaled
			}
			return withService(cfg, opts, func(svc *media.Service) error {
				rc, _, err := svc.Open(cmd.Context(), args[0], suffix)
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(stdout, rc)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&scaled, "scaled", false, "read the scaled variant")
	return cmd
}

func newBlobReplaceCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var scaledPath string

	cmd := &cobra.Command{
		Use:   "replace <id> <file>",
		Short: "Replace a blob's content, keeping its id",
		Args:  requireExactlyArgs(2, "id and file are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			ext := extensionOf(args[1])
			upd := media.ContentUpdate{Extension: &ext, Content: f}
			if scaledPath != "" {
				s, err := os.Open(scaledPath)
				if err != nil {
					return err
				}
				defer s.Close()
				upd.Variants = []blobstore.Variant{{Suffix: models.VariantScaled, Content: s}}
			}

			return withService(cfg, opts, func(svc *media.Service) error {
				blob, err := svc.ReplaceBlob(cmd.Context(), args[0], upd)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(blob)
				}
				return writeLines(blobLines(blob, ""))
			})
		},
	}

	cmd.Flags().StringVar(&scaledPath, "scaled", "", "file holding the new scaled variant")
	return cmd
}
