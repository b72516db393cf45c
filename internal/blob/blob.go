// Package blob abstracts image storage. The worker fetches source images and
// writes cropped derivatives through it.
package blob

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Store reads and writes image blobs by reference.
type Store interface {
	Fetch(ref string) ([]byte, error)
	Put(ref string, data []byte) (string, error)
}

// FSStore is a filesystem-backed blob store rooted at a directory.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrap(err, "blob: create root")
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Fetch(ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read %s", ref)
	}
	return data, nil
}

func (s *FSStore) Put(ref string, data []byte) (string, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrapf(err, "blob: create dir for %s", ref)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "blob: write %s", ref)
	}
	return ref, nil
}

// resolve maps a ref to a path under the root, rejecting escapes.
func (s *FSStore) resolve(ref string) (string, error) {
	clean := filepath.Clean("/" + ref)
	if clean == "/" {
		return "", eris.Errorf("blob: empty ref")
	}
	path := filepath.Join(s.root, clean)
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", eris.Errorf("blob: ref escapes root: %s", ref)
	}
	return path, nil
}
