package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temp file beside path, verifies it by
// SHA256 and size, then renames it into place. A failed write never leaves a
// partial file at path.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if written != int64(len(data)) {
		return fmt.Errorf("write size mismatch: expected %d bytes, wrote %d bytes", len(data), written)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := verifyFile(tmpName, data); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return nil
}

func verifyFile(path string, want []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopen temp file: %w", err)
	}
	defer f.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return fmt.Errorf("hash temp file: %w", err)
	}
	if size != int64(len(want)) {
		return fmt.Errorf("verify size mismatch: expected %d bytes, found %d bytes", len(want), size)
	}
	expected := sha256.Sum256(want)
	if !bytes.Equal(hasher.Sum(nil), expected[:]) {
		return fmt.Errorf("verify hash mismatch: file corrupted during write")
	}
	return nil
}
