// Package dirtree allocates leaf directories in a bounded-fanout tree of
// numbered directories, growing the tree on demand.
package dirtree

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"

	"mediastore/internal/metrics"
)

var (
	// ErrStructureFull means every leaf at the configured depth is full.
	ErrStructureFull = errors.New("directory structure full")
	// ErrIntegrity means the on-disk tree disagrees with the allocator.
	ErrIntegrity = errors.New("directory structure integrity violation")
)

var numberedDir = regexp.MustCompile(`^[0-9]+$`)

const dirPerm os.FileMode = 0o755

// Options configures an Allocator.
type Options struct {
	// MaxEntries bounds files per leaf and numbered subdirectories per branch.
	MaxEntries int
	// Depth is the number of directory levels below the root. Zero means the
	// root itself is the only leaf.
	Depth int
	// Name labels logs and metrics, usually the media kind.
	Name    string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Allocator hands out leaf directories whose entry count is below
// MaxEntries. Only the decision step is serialized; callers write files
// without holding the lock, so the bound is soft under concurrency.
type Allocator struct {
	fs      billy.Filesystem
	max     int
	depth   int
	width   int
	name    string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	ready bool
	// leaf holds the on-disk names of the current leaf's path components.
	leaf []string
}

// New validates opts and returns an allocator over fs. The tree is read
// lazily on the first Directory call.
func New(fs billy.Filesystem, opts Options) (*Allocator, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if opts.MaxEntries < 2 {
		return nil, fmt.Errorf("max entries per directory must be >= 2, got %d", opts.MaxEntries)
	}
	if opts.Depth < 0 {
		return nil, fmt.Errorf("tree depth must be >= 0, got %d", opts.Depth)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		fs:      fs,
		max:     opts.MaxEntries,
		depth:   opts.Depth,
		width:   len(strconv.Itoa(opts.MaxEntries - 1)),
		name:    opts.Name,
		logger:  logger.With("component", "dirtree", "tree", opts.Name),
		metrics: opts.Metrics,
	}, nil
}

// MaxEntries returns the per-directory capacity.
func (a *Allocator) MaxEntries() int { return a.max }

// Depth returns the configured tree depth.
func (a *Allocator) Depth() int { return a.depth }

// Directory returns a leaf directory, relative to the filesystem root, that
// currently holds fewer than MaxEntries files.
func (a *Allocator) Directory() (string, error) {
	leaf, err := a.current()
	if err != nil {
		return "", err
	}
	n, err := a.countFiles(leaf)
	if err != nil {
		return "", err
	}
	if n < a.max {
		return a.path(leaf), nil
	}
	next, err := a.advance(leaf)
	if err != nil {
		return "", err
	}
	return a.path(next), nil
}

func (a *Allocator) current() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		if err := a.initLocked(); err != nil {
			return nil, err
		}
	}
	return slices.Clone(a.leaf), nil
}

// initLocked drills down from the root, creating the first directory at any
// empty level and otherwise following the numerically largest child.
func (a *Allocator) initLocked() error {
	leaf := make([]string, 0, a.depth)
	for level := 0; level < a.depth; level++ {
		kids, err := a.children(leaf)
		if err != nil {
			return err
		}
		if len(kids) == 0 {
			first := append(slices.Clone(leaf), a.pad(0))
			if err := a.mkdir(first); err != nil {
				return err
			}
			leaf = first
			continue
		}
		if len(kids) > a.max {
			a.alarm("branch over capacity", a.path(leaf), len(kids))
		}
		leaf = append(leaf, kids[len(kids)-1].name)
	}
	a.leaf = leaf
	a.ready = true
	a.logger.Debug("allocator initialized", "leaf", a.path(leaf))
	return nil
}

// advance moves the current leaf past from. It first re-checks that from
// is still full, since another caller may have freed or advanced it while
// the lock was not held.
func (a *Allocator) advance(from []string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !slices.Equal(a.leaf, from) {
		return slices.Clone(a.leaf), nil
	}
	n, err := a.countFiles(from)
	if err != nil {
		return nil, err
	}
	if n < a.max {
		return slices.Clone(from), nil
	}

	for level := a.depth - 1; level >= 0; level-- {
		parent := from[:level]
		kids, err := a.children(parent)
		if err != nil {
			return nil, err
		}
		if len(kids) >= a.max {
			if len(kids) > a.max {
				a.alarm("branch over capacity", a.path(parent), len(kids))
			}
			continue
		}
		cur, err := strconv.Atoi(from[level])
		if err != nil {
			return nil, fmt.Errorf("%w: unnumbered directory %s", ErrIntegrity, a.path(from[:level+1]))
		}
		if cur+1 >= a.max {
			// Sparse numbering has used up the names of a branch that still
			// has room by count.
			a.alarm("branch numbering exhausted", a.path(parent), len(kids))
			continue
		}

		next := append(slices.Clone(parent), a.pad(cur+1))
		if slices.ContainsFunc(kids, func(c child) bool { return c.num == cur+1 }) {
			a.alarm("next directory already exists", a.path(next), len(kids))
			return nil, fmt.Errorf("%w: %s already exists", ErrIntegrity, a.path(next))
		}
		if err := a.mkdir(next); err != nil {
			return nil, err
		}
		for len(next) < a.depth {
			next = append(next, a.pad(0))
			if err := a.mkdir(next); err != nil {
				return nil, err
			}
		}
		a.leaf = next
		a.logger.Info("advanced leaf directory", "leaf", a.path(next))
		return slices.Clone(next), nil
	}

	a.metrics.StructureExhausted(a.name)
	a.logger.Error("directory structure full", "max_entries", a.max, "depth", a.depth)
	return nil, ErrStructureFull
}

type child struct {
	name string
	num  int
}

// children lists the numbered subdirectories of dir in ascending numeric
// order, keeping their on-disk names.
func (a *Allocator) children(dir []string) ([]child, error) {
	entries, err := a.fs.ReadDir(a.path(dir))
	if err != nil {
		return nil, fmt.Errorf("read directory %q: %w", a.path(dir), err)
	}
	kids := make([]child, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !numberedDir.MatchString(e.Name()) {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		kids = append(kids, child{name: e.Name(), num: n})
	}
	slices.SortFunc(kids, func(x, y child) int {
		if x.num != y.num {
			return x.num - y.num
		}
		return strings.Compare(x.name, y.name)
	})
	return kids, nil
}

func (a *Allocator) countFiles(dir []string) (int, error) {
	entries, err := a.fs.ReadDir(a.path(dir))
	if err != nil {
		return 0, fmt.Errorf("read directory %q: %w", a.path(dir), err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

func (a *Allocator) mkdir(dir []string) error {
	p := a.path(dir)
	if err := a.fs.MkdirAll(p, dirPerm); err != nil {
		return fmt.Errorf("create directory %q: %w", p, err)
	}
	a.metrics.DirectoryCreated(a.name)
	return nil
}

func (a *Allocator) alarm(msg, dir string, count int) {
	a.metrics.IntegrityAlarm(a.name)
	a.logger.Error(msg, "dir", dir, "entries", count, "max_entries", a.max)
}

// path joins dir into a relative path. The root is the empty string.
func (a *Allocator) path(dir []string) string {
	return a.fs.Join(dir...)
}

func (a *Allocator) pad(n int) string {
	return fmt.Sprintf("%0*d", a.width, n)
}
