package raster

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
)

// Store opens region image resources by name.
type Store interface {
	Open(name string) (io.ReadCloser, error)
}

// FSStore serves resources from a filesystem.
type FSStore struct {
	fsys fs.FS
}

// NewFSStore wraps an fs.FS, e.g. an fstest.MapFS in tests.
func NewFSStore(fsys fs.FS) *FSStore {
	return &FSStore{fsys: fsys}
}

// NewDirStore serves resources from a directory on disk.
func NewDirStore(dir string) *FSStore {
	return &FSStore{fsys: os.DirFS(dir)}
}

// Open returns the named resource. Missing files wrap domain.ErrResourceNotFound.
func (s *FSStore) Open(name string) (io.ReadCloser, error) {
	f, err := s.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, name)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// Exists reports whether the named resource is present.
func (s *FSStore) Exists(name string) bool {
	_, err := fs.Stat(s.fsys, name)
	return err == nil
}

// MissingResources returns the catalog regions whose image is absent from the store.
func (s *FSStore) MissingResources(catalog *domain.Catalog) []domain.Region {
	var missing []domain.Region
	for _, r := range catalog.Regions() {
		if !s.Exists(r.Resource) {
			missing = append(missing, r)
		}
	}
	return missing
}

// CheckReadiness fails when none of the catalog's region images is present.
func (s *FSStore) CheckReadiness(catalog *domain.Catalog) error {
	regions := catalog.Regions()
	if len(s.MissingResources(catalog)) == len(regions) {
		return fmt.Errorf("%w: no region image available for %d regions", domain.ErrResourceNotFound, len(regions))
	}
	return nil
}
