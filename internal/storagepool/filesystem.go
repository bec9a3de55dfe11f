package storagepool

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// FilesystemStorage is a Storage handle rooted at a local directory.
type FilesystemStorage struct {
	root string
}

// NewFilesystemStorage creates a filesystem handle rooted at root,
// creating the directory if it doesn't exist.
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemStorage{root: root}, nil
}

// Path returns the absolute filesystem path for filename, satisfying
// LocalPathResolver.
func (s *FilesystemStorage) Path(filename string) string {
	return filepath.Join(s.root, filename)
}

func (s *FilesystemStorage) Exists(ctx context.Context, filename string) (bool, error) {
	_, err := os.Stat(s.Path(filename))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FilesystemStorage) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	return os.Open(s.Path(filename))
}

func (s *FilesystemStorage) Save(ctx context.Context, filename string, r io.Reader) error {
	path := s.Path(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

func (s *FilesystemStorage) Delete(ctx context.Context, filename string) error {
	err := os.Remove(s.Path(filename))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
