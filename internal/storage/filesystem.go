package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/pkg/crypto"
)

// FilesystemBackend stores document content on a local or mounted filesystem.
type FilesystemBackend struct {
	dataDir string
	tempDir string
	logger  zerolog.Logger
}

// NewFilesystemBackend creates a filesystem backend rooted at dataDir.
// Writes are staged in tempDir and renamed into place, so a partially
// written file is never visible at its final path.
func NewFilesystemBackend(dataDir, tempDir string, logger zerolog.Logger) (*FilesystemBackend, error) {
	for _, dir := range []string{dataDir, tempDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	return &FilesystemBackend{
		dataDir: dataDir,
		tempDir: tempDir,
		logger:  logger.With().Str("storage", "filesystem").Logger(),
	}, nil
}

// Store writes content to the given path, computing the checksum in one pass.
func (b *FilesystemBackend) Store(ctx context.Context, path string, reader io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	tempPath := filepath.Join(b.tempDir, uuid.NewString())
	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	hashReader := crypto.NewHashReader(reader)
	if _, err := io.Copy(tempFile, hashReader); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to write content: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	finalPath := filepath.Join(b.dataDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o750); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to create content directory: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to move content into place: %w", err)
	}

	b.logger.Debug().
		Str("path", path).
		Int64("size", hashReader.Size()).
		Msg("content stored")

	return hashReader.SHA256(), hashReader.Size(), nil
}

// Retrieve opens the content at the given path.
func (b *FilesystemBackend) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(b.dataDir, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	return f, nil
}

// Delete removes the content at the given path.
func (b *FilesystemBackend) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(b.dataDir, filepath.FromSlash(path))); err != nil {
		if os.IsNotExist(err) {
			return ErrContentNotFound
		}
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// Exists checks whether content is stored at the given path.
func (b *FilesystemBackend) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(filepath.Join(b.dataDir, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat content: %w", err)
	}
	return true, nil
}

// Ensure FilesystemBackend implements Backend.
var _ Backend = (*FilesystemBackend)(nil)
