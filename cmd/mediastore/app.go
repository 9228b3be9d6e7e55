package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"mediastore/internal/blobstore"
	"mediastore/internal/config"
	"mediastore/internal/media"
	"mediastore/internal/metrics"
	"mediastore/internal/models"
	"mediastore/internal/store"
)

// withService opens the metadata store and every media tree, runs fn and
// closes them again. Metrics are written to the textfile, if one is
// configured, even when fn fails.
func withService(cfg *config.Config, opts *rootOptions, fn func(*media.Service) error) (err error) {
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	defer func() {
		if opts.metricsFile == "" {
			return
		}
		if werr := prometheus.WriteToTextfile(opts.metricsFile, registry); werr != nil && err == nil {
			err = fmt.Errorf("write metrics: %w", werr)
		}
	}()

	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	trees, err := openTrees(cfg, m)
	if err != nil {
		return err
	}

	svc, err := media.NewService(st, trees, media.Options{
		Logger:  slog.Default().With("component", "media"),
		Metrics: m,
	})
	if err != nil {
		return err
	}
	return fn(svc)
}

func openStore(cfg *config.Config, skipMigrations bool) (*store.Store, error) {
	driver, err := store.ParseDriver(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Options{Driver: driver, DSN: cfg.Database.DSN, SkipMigrations: skipMigrations})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return st, nil
}

// openTrees opens one tree per media kind under storage.root. The root must
// exist; the per-kind directories are created on demand.
func openTrees(cfg *config.Config, m *metrics.Metrics) (map[models.MediaKind]blobstore.BlobStore, error) {
	root := cfg.Storage.Root
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errStorageRootMissing, root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", root)
	}

	trees := make(map[models.MediaKind]blobstore.BlobStore, len(models.MediaKinds))
	for _, kind := range models.MediaKinds {
		dir := filepath.Join(root, string(kind))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s tree: %w", kind, err)
		}
		tree, err := blobstore.OpenLocal(dir, blobstore.TreeOptions{
			Kind:       string(kind),
			MaxEntries: cfg.Storage.MaxEntriesPerDirectory,
			Depth:      cfg.Storage.TreeDepth,
			Logger:     slog.Default().With("component", "blobstore", "kind", kind),
			Metrics:    m,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s tree: %w", kind, err)
		}
		trees[kind] = tree
	}
	return trees, nil
}
