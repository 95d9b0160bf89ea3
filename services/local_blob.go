package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalBlobStore keeps blobs on the local filesystem. Intended for
// development and tests; locators map directly to paths under basePath.
type LocalBlobStore struct {
	basePath string
	baseURL  string
}

func NewLocalBlobStore(basePath, baseURL string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalBlobStore{
		basePath: basePath,
		baseURL:  baseURL,
	}, nil
}

func (s *LocalBlobStore) Put(ctx context.Context, locator string, data io.Reader) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(locator))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}

	return s.url(locator), nil
}

func (s *LocalBlobStore) Delete(ctx context.Context, locator string) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(locator))

	err := os.Remove(fullPath)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlobUnavailable, err)
	}
	return nil
}

func (s *LocalBlobStore) ResolveURL(ctx context.Context, locator string, ttl time.Duration) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(locator))
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", ErrNotFound
	}
	return s.url(locator), nil
}

func (s *LocalBlobStore) url(locator string) string {
	return s.baseURL + "/" + locator
}
