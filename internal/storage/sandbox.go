// Package storage confines file operations to a configured directory.
//
// A Sandbox holds an os.Root on its directory, so besides the lexical check
// on every relative path, symlinks inside the tree cannot lead outside it.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrEscapesSandbox is returned for paths that resolve outside the sandbox.
var ErrEscapesSandbox = errors.New("path escapes sandbox")

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// Sandbox provides file operations within a base directory.
type Sandbox struct {
	dir  string
	root *os.Root
}

// NewSandbox opens a Sandbox on dir, creating it first when missing. Close
// releases the directory handle.
func NewSandbox(dir string) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("creating %s: %w", abs, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", abs, err)
	}
	return &Sandbox{dir: abs, root: root}, nil
}

// Close releases the sandbox directory.
func (s *Sandbox) Close() error {
	return s.root.Close()
}

// BaseDir returns the absolute path of the sandbox directory.
func (s *Sandbox) BaseDir() string {
	return s.dir
}

// local cleans name and rejects absolute or parent-relative paths.
func local(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrEscapesSandbox, name)
	}
	return filepath.Clean(name), nil
}

// ResolvePath returns the absolute path of name inside the sandbox, for
// callers that hand the file to something outside this package.
func (s *Sandbox) ResolvePath(name string) (string, error) {
	rel, err := local(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, rel), nil
}

// Exists reports whether name exists.
func (s *Sandbox) Exists(name string) (bool, error) {
	rel, err := local(name)
	if err != nil {
		return false, err
	}
	switch _, err := s.root.Stat(rel); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", rel, err)
	}
}

// ReadFile returns the contents of name.
func (s *Sandbox) ReadFile(name string) ([]byte, error) {
	rel, err := local(name)
	if err != nil {
		return nil, err
	}
	data, err := s.root.ReadFile(rel)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// AtomicWrite replaces name with data. The bytes go to a hidden temporary
// file in the same directory first and are renamed over name, so a reader
// sees either the old file or the new one.
func (s *Sandbox) AtomicWrite(name string, data []byte) error {
	rel, err := local(name)
	if err != nil {
		return err
	}
	dir, base := filepath.Split(rel)
	if dir != "" {
		if err := s.root.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	tmp := filepath.Join(dir, "."+base+"."+tempSuffix()+".tmp")
	f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.root.Rename(tmp, rel)
	}
	if err != nil {
		_ = s.root.Remove(tmp)
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// RemoveAll removes name and anything below it. The sandbox directory
// itself cannot be removed.
func (s *Sandbox) RemoveAll(name string) error {
	rel, err := local(name)
	if err != nil {
		return err
	}
	if rel == "." {
		return errors.New("refusing to remove the sandbox directory")
	}
	if err := s.root.RemoveAll(rel); err != nil {
		return fmt.Errorf("removing %s: %w", rel, err)
	}
	return nil
}

// List returns the entry names of directory name, sorted. A missing
// directory yields nil.
func (s *Sandbox) List(name string) ([]string, error) {
	rel, err := local(name)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(s.root.FS(), filepath.ToSlash(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", rel, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func tempSuffix() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
