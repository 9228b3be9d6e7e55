package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediastore/internal/config"
	"mediastore/internal/media"
	"mediastore/internal/models"
)

func newDocCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Store, replace, remove and read documents",
	}

	cmd.AddCommand(
		newDocPutCmd(cfg, opts),
		newDocReplaceCmd(cfg, opts),
		newDocRemoveCmd(cfg, opts),
		newDocShowCmd(cfg, opts),
		newDocCatCmd(cfg, opts),
	)
	return cmd
}

func newDocPutCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var (
		id          string
		name        string
		description string
		creator     string
		privacy     string
	)

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Store a new document",
		Args:  requireExactlyArgs(1, "file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.New().String()
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			if creator == "" {
				return errors.New("--creator is required")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withService(cfg, opts, func(svc *media.Service) error {
				doc, err := svc.CreateDocument(cmd.Context(), media.DocumentInput{
					ID:           id,
					Name:         name,
					Description:  description,
					PrivacyState: models.PrivacyState(privacy),
					Creator:      creator,
					Extension:    extensionOf(args[0]),
					Content:      f,
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(doc)
				}
				return writePlain("%s\n", doc.ID)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "document UUID (default: generated)")
	cmd.Flags().StringVar(&name, "name", "", "document name (default: file name)")
	cmd.Flags().StringVar(&description, "description", "", "document description")
	cmd.Flags().StringVar(&creator, "creator", os.Getenv("USER"), "creating user")
	cmd.Flags().StringVar(&privacy, "privacy", "", "privacy state: private|shared")
	return cmd
}

func newDocReplaceCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var (
		name        string
		description string
		privacy     string
	)

	cmd := &cobra.Command{
		Use:   "replace <id> [file]",
		Short: "Replace a document's content or metadata",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd media.DocumentUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("description") {
				upd.Description = &description
			}
			if cmd.Flags().Changed("privacy") {
				state := models.PrivacyState(privacy)
				upd.PrivacyState = &state
			}
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				ext := extensionOf(args[1])
				upd.Content = f
				upd.Extension = &ext
			}
			if upd.Content == nil && upd.Name == nil && upd.Description == nil && upd.PrivacyState == nil {
				return errors.New("nothing to replace: pass a file or a metadata flag")
			}

			return withService(cfg, opts, func(svc *media.Service) error {
				doc, err := svc.ReplaceDocument(cmd.Context(), args[0], upd)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(doc)
				}
				return writeDocumentDetail(doc)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new document name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&privacy, "privacy", "", "new privacy state: private|shared")
	return cmd
}

func newDocRemoveCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a document and its payload",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, opts, func(svc *media.Service) error {
				if err := svc.DeleteDocument(cmd.Context(), args[0]); err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(map[string]string{"id": args[0], "status": "deleted"})
				}
				return writePlain("deleted %s\n", args[0])
			})
		},
	}
}

func newDocShowCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show document metadata",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, opts, func(svc *media.Service) error {
				doc, err := svc.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(doc)
				}
				return writeDocumentDetail(doc)
			})
		},
	}
}

func newDocCatCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <id>",
		Short: "Write a document's content to stdout",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cfg, opts, func(svc *media.Service) error {
				rc, _, err := svc.OpenDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(stdout, rc)
				return err
			})
		},
	}
}

func extensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
