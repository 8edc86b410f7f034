// Package blob re-exports the blob storage abstraction and selects a backend.
package blob

import (
	"crossgeno/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned when writing a key that is already stored.
	ErrExists = core.ErrExists
	// ErrNotFound is returned for keys that are not stored.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidKey is returned for keys a backend refuses.
	ErrInvalidKey = core.ErrInvalidKey
)
