package media

import (
	"context"

	"mediastore/internal/blobstore"
)

const (
	phaseUndo       = "undo"
	phaseSuperseded = "superseded"
	phaseDeleted    = "deleted"
	phaseSweep      = "sweep"
)

type fileRef struct {
	tree     blobstore.BlobStore
	location string
}

// fileSet is an ordered list of files scheduled for removal. The undo log
// holds new files to drop if the transaction fails; the deferred set holds
// superseded files to drop once it commits.
type fileSet struct {
	files []fileRef
}

func (f *fileSet) add(tree blobstore.BlobStore, locations ...string) {
	for _, loc := range locations {
		f.files = append(f.files, fileRef{tree: tree, location: loc})
	}
}

func (f *fileSet) len() int { return len(f.files) }

// remove deletes every file best-effort and reports how many failed.
// Failures are logged and counted, never returned. Cancellation of ctx does
// not stop cleanup.
func (s *Service) remove(ctx context.Context, phase string, set *fileSet) int {
	if set == nil || len(set.files) == 0 {
		return 0
	}
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for _, ref := range set.files {
		err := ref.tree.Delete(ctx, ref.location)
		s.metrics.FileRemoved(phase, err)
		if err != nil {
			failed++
			s.logger.Warn("failed to remove blob file", "phase", phase, "location", ref.location, "error", err)
			continue
		}
		s.logger.Debug("removed blob file", "phase", phase, "location", ref.location)
	}
	set.files = nil
	return failed
}
