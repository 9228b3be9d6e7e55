package blobstore

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrBlobExists means every generation name for the blob is taken in
	// the target directory.
	ErrBlobExists = errors.New("blob file already exists")
	// ErrForeignLocation means a location does not belong to this tree.
	ErrForeignLocation = errors.New("location outside blob tree")
)

// Variant is a derived payload stored beside the primary file as
// "<id><Suffix>".
type Variant struct {
	Suffix  string
	Content io.Reader
}

// PutRequest describes one blob to persist.
type PutRequest struct {
	ID       string
	Content  io.Reader
	Variants []Variant
}

// PutResult describes what a Put wrote. Files is populated on error too, so
// callers can compensate for partially written blobs.
type PutResult struct {
	Location  string
	Dir       string
	Files     []string
	Variants  []string
	SizeBytes int64
	SHA256    string
}

// BlobStore is the byte-storage abstraction used by the media service.
type BlobStore interface {
	Put(ctx context.Context, req PutRequest) (PutResult, error)
	PutReplacing(ctx context.Context, req PutRequest, old string) (PutResult, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
	Exists(ctx context.Context, location string) (bool, error)
	Walk(ctx context.Context, fn WalkFunc) error
	Kind() string
	Root() string
}

// WalkFunc receives the location of every blob file in a tree.
type WalkFunc func(f FileInfo) error
