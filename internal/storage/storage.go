// Package storage abstracts the blob store that holds per-line audio
// segments and published episode artifacts.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BlobStore is the storage boundary of the pipeline.
type BlobStore interface {
	// Upload stores the local file under key and returns nothing; use
	// ReadURL to obtain the public location.
	Upload(ctx context.Context, localPath, key, contentType string) error
	// UploadBytes stores raw data under key.
	UploadBytes(ctx context.Context, data []byte, key, contentType string) error
	// ReadURL returns a publicly readable URL for key. Expiry of zero means
	// effectively permanent.
	ReadURL(key string, expiry time.Duration) (string, error)
}

// LocalStore keeps blobs on the local filesystem under Root and publishes
// them through the server's /audio/ route at BaseURL. Read URLs never expire.
type LocalStore struct {
	Root    string
	BaseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("audio storage path is not configured")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio storage dir: %w", err)
	}
	return &LocalStore{Root: root, BaseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	cleaned := filepath.Clean(key)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.Root, cleaned), nil
}

func (s *LocalStore) Upload(ctx context.Context, localPath, key, contentType string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()
	return s.write(ctx, key, src)
}

func (s *LocalStore) UploadBytes(ctx context.Context, data []byte, key, contentType string) error {
	return s.write(ctx, key, bytes.NewReader(data))
}

func (s *LocalStore) write(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *LocalStore) ReadURL(key string, expiry time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/audio/%s", s.BaseURL, filepath.ToSlash(filepath.Clean(key))), nil
}
