package solve

import (
	"context"
	"fmt"
)

// A Source materialises registrations from one kind of backend. The variant
// set is closed: registry, path, git.
type Source interface {
	// Match reports whether this source handles the hint, which is either a
	// source type string or a Dependency.
	Match(hint interface{}) bool

	// Resolve enumerates candidate registrations satisfying the dependency:
	// all published versions for a registry, the single version read from
	// the path's manifest for a path, the tip at the specified ref for git.
	Resolve(ctx context.Context, dep Dependency) ([]Registration, error)

	// Fetch materialises the registration's source locally and returns its
	// absolute path. Fetch is idempotent across runs.
	Fetch(ctx context.Context, reg Registration) (string, error)

	// Update refreshes any local index backing the source. It is a no-op for
	// sources without one.
	Update(ctx context.Context) error
}

// A ManifestLoader reads the manifest found in dir and reduces it to a
// snapshot. It is implemented by the project layer; sources use it to
// inspect path and git dependencies without knowing the manifest format.
type ManifestLoader interface {
	Load(dir string) (Snapshot, error)
}

// ChecksumMismatchError is returned when downloaded bytes do not hash to the
// checksum registered in the index. Nothing has been moved into the cache
// when it is returned.
type ChecksumMismatchError struct {
	Reg  Registration
	Want string
	Got  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: index declares %s, downloaded %s", e.Reg.ID(), e.Want, e.Got)
}

// PathNotFoundError is returned when a path dependency does not lead to a
// manifest.
type PathNotFoundError struct {
	Name string
	Path string
	Err  error
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("no manifest found for %s at %s", e.Name, e.Path)
}

func (e *PathNotFoundError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a registry has no entry for the requested
// name.
type NotFoundError struct {
	Name     string
	Registry string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s was not found in registry %q", e.Name, e.Registry)
}

// UnknownRegistryError is returned when a dependency names a registry the
// configuration does not carry.
type UnknownRegistryError struct {
	Registry string
}

func (e *UnknownRegistryError) Error() string {
	return fmt.Sprintf("no registry named %q is configured", e.Registry)
}

// DownloadError is returned when the transport could not produce the bytes
// for a registration.
type DownloadError struct {
	URL    string
	Status string
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("download of %s failed: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("download of %s failed: %s", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// UnknownSourceError is returned when a registration or dependency names a
// source type outside the closed variant set.
type UnknownSourceError struct {
	Type string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unrecognized source type %q", e.Type)
}
