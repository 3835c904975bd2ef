// Package blob stores uploaded note files in a single directory, keyed by
// filename.
package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Policy decides what Save does when the name is already taken.
type Policy string

const (
	Reject    Policy = "reject"
	Overwrite Policy = "overwrite"
	Rename    Policy = "rename"
)

var (
	ErrBlobExists  = errors.New("a file with that name already exists")
	ErrInvalidName = errors.New("invalid file name")
	ErrNotFound    = errors.New("file not found")
)

// maxRenames bounds the name-N search under the Rename policy.
const maxRenames = 1000

func (p Policy) Valid() bool {
	switch p {
	case Reject, Overwrite, Rename:
		return true
	}
	return false
}

type DirStore struct {
	dir    string
	policy Policy
}

// New returns a DirStore rooted at dir, creating the directory if needed.
func New(dir string, policy Policy) (*DirStore, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown collision policy %q", policy)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &DirStore{dir: dir, policy: policy}, nil
}

// CleanName rejects anything that is not a plain base name.
func CleanName(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}
	return name, nil
}

// Save writes r under name and returns the name actually used, which differs
// from name only under the Rename policy.
func (d *DirStore) Save(name string, r io.Reader) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}

	if d.policy == Overwrite {
		return name, d.replace(name, r)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	stored := name
	f, err := os.OpenFile(d.path(stored), flags, 0644)
	if errors.Is(err, fs.ErrExist) {
		if d.policy != Rename {
			return "", ErrBlobExists
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for i := 1; errors.Is(err, fs.ErrExist) && i <= maxRenames; i++ {
			stored = fmt.Sprintf("%s-%d%s", base, i, ext)
			f, err = os.OpenFile(d.path(stored), flags, 0644)
		}
	}
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", stored, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(d.path(stored))
		return "", fmt.Errorf("writing %s: %w", stored, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(d.path(stored))
		return "", fmt.Errorf("closing %s: %w", stored, err)
	}
	return stored, nil
}

// replace writes r to a temp file and renames it over name, so a failed
// write leaves the previous file intact.
func (d *DirStore) replace(name string, r io.Reader) error {
	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), d.path(name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// Overwrites reports whether Save replaces an existing file of the same
// name. Callers must not remove such a file on a later failure, since an
// earlier note may still point at it.
func (d *DirStore) Overwrites() bool {
	return d.policy == Overwrite
}

func (d *DirStore) Open(name string) (*os.File, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (d *DirStore) Remove(name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	return os.Remove(d.path(name))
}

func (d *DirStore) path(name string) string {
	return filepath.Join(d.dir, name)
}
