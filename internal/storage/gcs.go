package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSGateway implements Gateway on Google Cloud Storage.
type GCSGateway struct {
	client *gcs.Client
	logger *slog.Logger
}

// NewGCSGateway creates a client from a service account key file, or from
// application default credentials when credentialsFile is empty.
func NewGCSGateway(ctx context.Context, credentialsFile string) (*GCSGateway, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSGateway{client: client, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger for the gateway
func (g *GCSGateway) WithLogger(logger *slog.Logger) *GCSGateway {
	g.logger = logger
	return g
}

// Close releases the client.
func (g *GCSGateway) Close() error {
	return g.client.Close()
}

// List returns every object under prefix in listing order.
func (g *GCSGateway) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object
	it := g.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err)
		}
		objects = append(objects, Object{Key: attrs.Name, Size: attrs.Size})
	}
	return objects, nil
}

// Download writes bucket/key to dest.
func (g *GCSGateway) Download(ctx context.Context, bucket, key, dest string) error {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", bucket, key, err)
	}
	defer r.Close()

	return WriteFile(dest, r)
}

// Upload puts src at bucket/key.
func (g *GCSGateway) Upload(ctx context.Context, src, bucket, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", src, err)
	}
	defer f.Close()

	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if ct := mime.TypeByExtension(filepath.Ext(src)); ct != "" {
		w.ContentType = ct
	}

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("failed to copy %s to gs://%s/%s: %w", src, bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}

	g.logger.DebugContext(ctx, "uploaded to GCS",
		slog.String("bucket", bucket),
		slog.String("key", key),
	)
	return nil
}
