package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kurin/blazer/b2"
)

const downloadURLTTL = 24 * time.Hour

// B2Store is the Backblaze B2 implementation of BlobStore.
type B2Store struct {
	client     *b2.Client
	bucketName string
	bucket     *b2.Bucket
}

func NewB2Store(ctx context.Context, keyID, applicationKey, bucketName string) (*B2Store, error) {
	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}

	return &B2Store{
		client:     client,
		bucketName: bucketName,
		bucket:     bucket,
	}, nil
}

// Put streams data to B2 under locator. Writing to an existing locator
// replaces the prior blob.
func (s *B2Store) Put(ctx context.Context, locator string, data io.Reader) (string, error) {
	obj := s.bucket.Object(locator)
	writer := obj.NewWriter(ctx)

	if _, err := io.Copy(writer, data); err != nil {
		writer.Close()
		return "", fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to close B2 writer: %v", ErrBlobWriteFailed, err)
	}

	return s.ResolveURL(ctx, locator, downloadURLTTL)
}

func (s *B2Store) Delete(ctx context.Context, locator string) error {
	obj := s.bucket.Object(locator)

	if err := obj.Delete(ctx); err != nil {
		if b2.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: failed to delete blob: %v", ErrBlobUnavailable, err)
	}
	return nil
}

// ResolveURL generates a signed download URL for a private bucket.
func (s *B2Store) ResolveURL(ctx context.Context, locator string, ttl time.Duration) (string, error) {
	obj := s.bucket.Object(locator)

	urlObj, err := obj.AuthURL(ctx, ttl, "GET")
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate signed URL: %v", ErrBlobUnavailable, err)
	}

	return urlObj.String(), nil
}
