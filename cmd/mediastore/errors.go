package main

import (
	"context"
	"errors"

	"mediastore/internal/dirtree"
	"mediastore/internal/media"
	"mediastore/internal/store"
)

var errStorageRootMissing = errors.New("storage root does not exist")

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var batchErr *media.BatchError
	if errors.As(err, &batchErr) {
		lines = append(lines, "hint: nothing from this batch was stored; fix the item and retry the whole batch.")
	}

	switch {
	case errors.Is(err, errStorageRootMissing):
		lines = append(lines, "hint: create the directory or point storage.root (MEDIASTORE_STORAGE_ROOT) at an existing one.")
	case errors.Is(err, dirtree.ErrStructureFull):
		lines = append(lines, "hint: the media tree is full; raise storage.max_entries_per_directory or storage.tree_depth for a new root.")
	case errors.Is(err, dirtree.ErrIntegrity):
		lines = append(lines, "hint: the media tree holds unexpected entries; run 'mediastore tree' and inspect the reported directory.")
	case errors.Is(err, store.ErrDuplicate):
		lines = append(lines, "hint: an entity with this id is already stored; use a new id or the replace command.")
	case errors.Is(err, media.ErrNotFound):
		lines = append(lines, "hint: check the id; deleted entities cannot be recovered.")
	case errors.Is(err, context.DeadlineExceeded):
		lines = append(lines, "hint: the database did not answer in time; check MEDIASTORE_DB and the server it points at.")
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
