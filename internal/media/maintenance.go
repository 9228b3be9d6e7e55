package media

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"mediastore/internal/blobstore"
	"mediastore/internal/models"
)

const defaultSweepGrace = 24 * time.Hour

// SweepOptions controls an orphan sweep.
type SweepOptions struct {
	// Apply removes orphans; otherwise the sweep only reports them.
	Apply bool
	// Grace skips files modified more recently than now-Grace, so blobs of
	// in-flight transactions are never touched. Zero uses 24h.
	Grace time.Duration
	// Kinds limits the sweep; empty sweeps every configured tree.
	Kinds []models.MediaKind
}

// OrphanFile is a file in a tree that no committed row points at.
type OrphanFile struct {
	Kind     models.MediaKind `json:"kind"`
	Location string           `json:"location"`
	Size     int64            `json:"size_bytes"`
	ModTime  time.Time        `json:"mod_time"`
}

// SweepResult reports one sweep run.
type SweepResult struct {
	Scanned        int          `json:"scanned"`
	Orphans        []OrphanFile `json:"orphans"`
	DeletedCount   int          `json:"deleted_count"`
	FailedCount    int          `json:"failed_count"`
	ReclaimedBytes int64        `json:"reclaimed_bytes"`
	DryRun         bool         `json:"dry_run"`
}

// MissingFile is a committed row whose file is absent.
type MissingFile struct {
	BlobID   string           `json:"blob_id"`
	Kind     models.MediaKind `json:"kind"`
	Location string           `json:"location"`
}

// CheckResult reports rows that point at missing files.
type CheckResult struct {
	Checked int           `json:"checked"`
	Missing []MissingFile `json:"missing"`
}

// TreeStats summarizes the occupancy of one tree.
type TreeStats struct {
	Kind         models.MediaKind `json:"kind"`
	Root         string           `json:"root"`
	Files        int              `json:"files"`
	Bytes        int64            `json:"bytes"`
	Leaves       int              `json:"leaves"`
	FullestLeaf  string           `json:"fullest_leaf,omitempty"`
	FullestCount int              `json:"fullest_count"`
}

// Sweep finds files that no row references and, with Apply, removes them.
// Such files are left by crashes between a write and its commit, and by
// cleanup failures.
func (s *Service) Sweep(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	result := SweepResult{DryRun: !opts.Apply, Orphans: []OrphanFile{}}
	grace := opts.Grace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	cutoff := s.now().Add(-grace)

	for _, kind := range s.kinds(opts.Kinds) {
		tree, err := s.tree(kind)
		if err != nil {
			return result, err
		}
		var candidates []blobstore.FileInfo
		err = tree.Walk(ctx, func(f blobstore.FileInfo) error {
			result.Scanned++
			if f.ModTime.Before(cutoff) {
				candidates = append(candidates, f)
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("walk %s tree: %w", kind, err)
		}
		if len(candidates) == 0 {
			continue
		}

		primaries := make([]string, 0, len(candidates))
		for _, f := range candidates {
			primaries = append(primaries, primaryLocation(f.Location))
		}
		referenced, err := s.store.BlobIDsAtLocations(ctx, primaries)
		if err != nil {
			return result, err
		}

		orphans := &fileSet{}
		for i, f := range candidates {
			if _, ok := referenced[primaries[i]]; ok {
				continue
			}
			result.Orphans = append(result.Orphans, OrphanFile{Kind: kind, Location: f.Location, Size: f.Size, ModTime: f.ModTime})
			result.ReclaimedBytes += f.Size
			orphans.add(tree, f.Location)
		}
		if !opts.Apply {
			continue
		}
		n := orphans.len()
		failed := s.remove(ctx, phaseSweep, orphans)
		result.DeletedCount += n - failed
		result.FailedCount += failed
	}

	s.logger.Info("sweep finished", "scanned", result.Scanned, "orphans", len(result.Orphans), "deleted", result.DeletedCount, "dry_run", result.DryRun)
	return result, nil
}

// Check reports committed rows whose primary or variant file is missing.
func (s *Service) Check(ctx context.Context) (CheckResult, error) {
	result := CheckResult{Missing: []MissingFile{}}
	err := s.store.ListBlobs(ctx, "", func(b models.Blob) error {
		result.Checked++
		tree, err := s.tree(b.Kind)
		if err != nil {
			result.Missing = append(result.Missing, MissingFile{BlobID: b.ID, Kind: b.Kind, Location: b.Location})
			return nil
		}
		for _, loc := range b.Files() {
			ok, err := tree.Exists(ctx, loc)
			if err != nil {
				return err
			}
			if !ok {
				result.Missing = append(result.Missing, MissingFile{BlobID: b.ID, Kind: b.Kind, Location: loc})
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	if len(result.Missing) > 0 {
		s.logger.Error("rows point at missing files", "count", len(result.Missing))
	}
	return result, nil
}

// Stats summarizes the occupancy of every tree.
func (s *Service) Stats(ctx context.Context) ([]TreeStats, error) {
	out := make([]TreeStats, 0, len(s.trees))
	for _, kind := range s.kinds(nil) {
		tree, err := s.tree(kind)
		if err != nil {
			return nil, err
		}
		st := TreeStats{Kind: kind, Root: tree.Root()}
		perLeaf := map[string]int{}
		err = tree.Walk(ctx, func(f blobstore.FileInfo) error {
			st.Files++
			st.Bytes += f.Size
			perLeaf[path.Dir(strings.TrimPrefix(f.Location, "file://"))]++
			return nil
		})
		if err != nil {
			return nil, err
		}
		st.Leaves = len(perLeaf)
		for leaf, n := range perLeaf {
			if n > st.FullestCount || (n == st.FullestCount && leaf > st.FullestLeaf) {
				st.FullestLeaf, st.FullestCount = leaf, n
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) kinds(filter []models.MediaKind) []models.MediaKind {
	if len(filter) > 0 {
		return filter
	}
	out := make([]models.MediaKind, 0, len(s.trees))
	for kind := range s.trees {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// primaryLocation strips a known variant suffix from a file location.
func primaryLocation(location string) string {
	for _, suffix := range []string{models.VariantScaled} {
		if base, ok := strings.CutSuffix(location, suffix); ok && isBlobFileName(path.Base(base)) {
			return base
		}
	}
	return location
}

func isBlobFileName(name string) bool {
	id, _, ok := blobstore.ParseFileName(name)
	if !ok {
		return false
	}
	_, err := models.NormalizeID(id)
	return err == nil
}
