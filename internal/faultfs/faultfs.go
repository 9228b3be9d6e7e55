// Package faultfs wraps a billy.Filesystem and fails selected operations on
// demand. It is used to exercise compensation paths.
package faultfs

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
)

// ErrInjected is returned by every injected failure.
var ErrInjected = errors.New("injected filesystem failure")

// FS fails the Nth rename and any remove whose path contains a registered
// substring.
type FS struct {
	billy.Filesystem

	mu           sync.Mutex
	renames      int
	failRenameAt int
	failRemoves  []string
}

// New wraps fs with no faults armed.
func New(fs billy.Filesystem) *FS {
	return &FS{Filesystem: fs}
}

// FailRenameAt arms a failure for the nth rename from now on (1-based).
// Zero disarms it.
func (f *FS) FailRenameAt(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = 0
	f.failRenameAt = n
}

// FailRemove makes every Remove of a path containing substr fail.
func (f *FS) FailRemove(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRemoves = append(f.failRemoves, substr)
}

// Renames returns the number of renames seen since the last FailRenameAt.
func (f *FS) Renames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renames
}

func (f *FS) Rename(from, to string) error {
	f.mu.Lock()
	f.renames++
	fail := f.failRenameAt > 0 && f.renames == f.failRenameAt
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Filesystem.Rename(from, to)
}

func (f *FS) Remove(name string) error {
	f.mu.Lock()
	fail := false
	for _, s := range f.failRemoves {
		if strings.Contains(name, s) {
			fail = true
			break
		}
	}
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Filesystem.Remove(name)
}
