package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UploadFiles manages the temporary copies of uploaded documents.
type UploadFiles struct {
	Dir      string // absolute path of the temp directory
	MaxBytes int64  // zero means unlimited
}

func NewUploadFiles(dir string, maxBytes int64) (*UploadFiles, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", dir, err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &UploadFiles{Dir: absPath, MaxBytes: maxBytes}, nil
}

// pathFor keeps name inside the upload directory.
func (u *UploadFiles) pathFor(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	cleanPath := filepath.Join(u.Dir, base)
	if !strings.HasPrefix(cleanPath, u.Dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid filename, attempts to escape upload directory")
	}
	return cleanPath, nil
}

// Save writes r to <dir>/<id><ext> and returns the path.
func (u *UploadFiles) Save(id, ext string, r io.Reader) (string, error) {
	path, err := u.pathFor(id + ext)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	src := r
	if u.MaxBytes > 0 {
		src = io.LimitReader(r, u.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("write upload file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("close upload file: %w", closeErr)
	case u.MaxBytes > 0 && n > u.MaxBytes:
		err = fmt.Errorf("upload exceeds %d bytes", u.MaxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// Remove deletes a previously saved file. A missing file is not an error.
func (u *UploadFiles) Remove(path string) error {
	clean, err := u.pathFor(path)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}
