package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"mediastore/internal/dirtree"
	"mediastore/internal/metrics"
)

const (
	locationScheme = "file://"
	tmpDir         = "tmp"
	maxGenerations = 64
)

// TreeOptions configures a TreeStore and its allocator.
type TreeOptions struct {
	Kind       string
	MaxEntries int
	Depth      int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// TreeStore writes blobs named by their ID into directories handed out by a
// dirtree.Allocator. It never removes what it wrote when a Put fails.
type TreeStore struct {
	fs      billy.Filesystem
	root    string
	kind    string
	alloc   *dirtree.Allocator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ BlobStore = (*TreeStore)(nil)

// FileInfo describes one file found by Walk.
type FileInfo struct {
	Location string
	Name     string
	Size     int64
	ModTime  time.Time
}

// OpenLocal opens a tree rooted at an existing directory on the local disk.
func OpenLocal(root string, opts TreeOptions) (*TreeStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob tree root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("blob tree root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blob tree root %s is not a directory", abs)
	}
	return NewTreeStore(osfs.New(abs), opts)
}

// NewTreeStore builds a tree over fs, whose Root() names the absolute
// directory used in locations.
func NewTreeStore(fsys billy.Filesystem, opts TreeOptions) (*TreeStore, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alloc, err := dirtree.New(fsys, dirtree.Options{
		MaxEntries: opts.MaxEntries,
		Depth:      opts.Depth,
		Name:       opts.Kind,
		Logger:     logger,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := fsys.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}
	return &TreeStore{
		fs:      fsys,
		root:    filepath.ToSlash(fsys.Root()),
		kind:    opts.Kind,
		alloc:   alloc,
		logger:  logger.With("component", "blobstore", "tree", opts.Kind),
		metrics: opts.Metrics,
	}, nil
}

// Root returns the absolute root of the tree.
func (s *TreeStore) Root() string { return s.root }

// Kind returns the media kind this tree stores.
func (s *TreeStore) Kind() string { return s.kind }

// Put allocates a directory and writes the blob into it.
func (s *TreeStore) Put(ctx context.Context, req PutRequest) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	dir, err := s.alloc.Directory()
	if err != nil {
		return PutResult{}, err
	}
	return s.Write(ctx, dir, req)
}

// PutReplacing is Put for a blob whose current payload lives at old. A
// replace adds no blob, so when every leaf is full the new payload goes
// beside old, whose slot frees once the superseded file is removed.
func (s *TreeStore) PutReplacing(ctx context.Context, req PutRequest, old string) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	dir, err := s.alloc.Directory()
	if errors.Is(err, dirtree.ErrStructureFull) && old != "" {
		rel, relErr := s.relPath(old)
		if relErr != nil {
			return PutResult{}, relErr
		}
		dir = path.Dir(filepath.ToSlash(rel))
		if dir == "." {
			dir = ""
		}
		dir = s.fs.Join(splitSlash(dir)...)
		s.logger.Warn("tree full, replacing in place", "dir", dir, "id", req.ID)
		err = nil
	}
	if err != nil {
		return PutResult{}, err
	}
	return s.Write(ctx, dir, req)
}

// Write persists req into dir. Each file goes through a temp file under
// tmp/ and is renamed into place. Files already present are never touched:
// the blob takes the first free generation name, "<id>" then "<id>.1" and
// so on, so a replace or a retry after a crash never collides with a file
// left under the same ID.
func (s *TreeStore) Write(ctx context.Context, dir string, req PutRequest) (PutResult, error) {
	res := PutResult{Dir: dir}
	if req.ID == "" || strings.ContainsAny(req.ID, `/\.`) {
		return res, fmt.Errorf("invalid blob id %q", req.ID)
	}
	if req.Content == nil {
		return res, fmt.Errorf("content is required")
	}
	for _, v := range req.Variants {
		if v.Suffix == "" || strings.ContainsAny(v.Suffix, `/\.`) {
			return res, fmt.Errorf("invalid variant suffix %q", v.Suffix)
		}
		if v.Content == nil {
			return res, fmt.Errorf("variant %s content is required", v.Suffix)
		}
	}

	name, err := s.freeName(dir, req)
	if err != nil {
		return res, err
	}
	primary := s.fs.Join(dir, name)
	res.Location = s.location(primary)

	size, digest, err := s.writeFile(ctx, primary, req.Content)
	if err != nil {
		return res, err
	}
	res.Files = append(res.Files, res.Location)
	res.SizeBytes = size
	res.SHA256 = digest
	s.metrics.BlobWritten(s.kind, size)

	for _, v := range req.Variants {
		if _, _, err := s.writeFile(ctx, primary+v.Suffix, v.Content); err != nil {
			return res, fmt.Errorf("write variant %s: %w", v.Suffix, err)
		}
		res.Files = append(res.Files, res.Location+v.Suffix)
		res.Variants = append(res.Variants, v.Suffix)
	}

	s.logger.Debug("blob written", "location", res.Location, "size_bytes", size, "variants", len(res.Variants))
	return res, nil
}

// freeName returns the first generation name in dir under which neither
// the primary file nor any requested variant exists.
func (s *TreeStore) freeName(dir string, req PutRequest) (string, error) {
	for gen := 0; gen < maxGenerations; gen++ {
		name := GenerationName(req.ID, gen)
		free, err := s.free(s.fs.Join(dir, name), req.Variants)
		if err != nil {
			return "", err
		}
		if free {
			if gen > 0 {
				s.logger.Info("blob name taken, using next generation", "dir", dir, "id", req.ID, "generation", gen)
			}
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s has %d generations", ErrBlobExists, dir, req.ID, maxGenerations)
}

func (s *TreeStore) free(primary string, variants []Variant) (bool, error) {
	names := []string{primary}
	for _, v := range variants {
		names = append(names, primary+v.Suffix)
	}
	for _, name := range names {
		if _, err := s.fs.Lstat(name); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	return true, nil
}

// GenerationName is the file name of generation gen of blob id.
func GenerationName(id string, gen int) string {
	if gen == 0 {
		return id
	}
	return id + "." + strconv.Itoa(gen)
}

// ParseFileName splits a primary file name into its blob ID and generation.
func ParseFileName(name string) (id string, gen int, ok bool) {
	base, suffix, found := strings.Cut(name, ".")
	if !found {
		return name, 0, name != ""
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n <= 0 || strconv.Itoa(n) != suffix || base == "" {
		return "", 0, false
	}
	return base, n, true
}

func (s *TreeStore) writeFile(ctx context.Context, dst string, r io.Reader) (int64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	if _, err := s.fs.Lstat(dst); err == nil {
		return 0, "", fmt.Errorf("%w: %s", ErrBlobExists, s.location(dst))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, "", err
	}

	tmp, err := s.fs.TempFile(tmpDir, "put-")
	if err != nil {
		return 0, "", err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return 0, "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, "", err
	}
	if err := ctx.Err(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return 0, "", err
	}
	if err := s.fs.Rename(tmpPath, dst); err != nil {
		_ = s.fs.Remove(tmpPath)
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Open returns a reader for the file at location.
func (s *TreeStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := s.relPath(location)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(rel)
}

// Delete removes the file at location. Missing files are ignored.
func (s *TreeStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := s.relPath(location)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether a file is present at location.
func (s *TreeStore) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rel, err := s.relPath(location)
	if err != nil {
		return false, err
	}
	if _, err := s.fs.Lstat(rel); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Walk visits every regular file in the tree outside tmp/.
func (s *TreeStore) Walk(ctx context.Context, fn WalkFunc) error {
	return util.Walk(s.fs, "", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if path.Clean(filepath.ToSlash(p)) == tmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(FileInfo{
			Location: s.location(p),
			Name:     info.Name(),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	})
}

// Owns reports whether location belongs to this tree.
func (s *TreeStore) Owns(location string) bool {
	_, err := s.relPath(location)
	return err == nil
}

func (s *TreeStore) location(rel string) string {
	return locationScheme + path.Join(s.root, filepath.ToSlash(rel))
}

func (s *TreeStore) relPath(location string) (string, error) {
	p, ok := strings.CutPrefix(strings.TrimSpace(location), locationScheme)
	if !ok {
		return "", fmt.Errorf("%w: %q has no %s scheme", ErrForeignLocation, location, locationScheme)
	}
	p = path.Clean(p)
	root := path.Clean(s.root)
	prefix := root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	rel, ok := strings.CutPrefix(p, prefix)
	if !ok || rel == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignLocation, location)
	}
	parts := splitSlash(rel)
	if len(parts) > 0 && parts[0] == tmpDir {
		return "", fmt.Errorf("%w: %s", ErrForeignLocation, location)
	}
	return s.fs.Join(parts...), nil
}

func splitSlash(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
