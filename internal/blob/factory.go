package blob

import (
	"context"
	"fmt"

	"crossgeno/internal/infra/blob/fs"
	memorystore "crossgeno/internal/infra/blob/memory"
	infraS3 "crossgeno/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Options selects and configures a blob backend.
type Options struct {
	Driver Driver // fs|s3|memory; default fs
	FSRoot string // directory root when Driver is fs (default ./blobdata)
	S3     S3Config
}

// Open returns the configured blob.Store.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(opts.FSRoot)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed blob.Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the fake S3 endpoint for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
