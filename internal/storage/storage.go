// Package storage moves pipeline inputs and products between the working
// directory and object stores.
//
// Gateways cover one object store each (S3, GCS). Mux dispatches by URI
// scheme and also handles plain http(s) downloads and local paths.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Schemes understood by ParseURI and Mux.
const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// ErrUnsupportedScheme is returned for URIs no gateway handles.
var ErrUnsupportedScheme = errors.New("unsupported storage scheme")

// Object is one listed key.
type Object struct {
	Key  string
	Size int64
}

// Gateway is an object store.
type Gateway interface {
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	Download(ctx context.Context, bucket, key, dest string) error
	Upload(ctx context.Context, src, bucket, key string) error
}

// URI is a parsed object location.
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI parses s3://bucket/key and gs://bucket/key.
func ParseURI(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return URI{}, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, raw)
	}
	if scheme != SchemeS3 && scheme != SchemeGCS {
		return URI{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return URI{}, fmt.Errorf("invalid object URI %q: missing bucket", raw)
	}
	return URI{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

func (u URI) String() string {
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// ParseBucket splits an upload target into scheme and bucket name. A bare
// name, or one written as "s3:name", refers to S3.
func ParseBucket(target string) (scheme, bucket string) {
	if s, rest, ok := strings.Cut(target, "://"); ok {
		return s, strings.Trim(rest, "/")
	}
	target = strings.TrimPrefix(target, "s3:")
	return SchemeS3, strings.ReplaceAll(target, "/", "")
}

// gslcPattern matches raw-scene GSLC product file names.
var gslcPattern = regexp.MustCompile(`^S1[A-D]_\w{2}_RAW__0S\w{2}_\d{8}T\d{6}_\d{8}T\d{6}_\d{6}_[0-9A-F]{6}_[0-9A-F]{4}\.(zip|geo)$`)

// IsGSLC reports whether the base name of key is a GSLC product file.
func IsGSLC(key string) bool {
	return gslcPattern.MatchString(path.Base(key))
}

// Mux routes storage operations by scheme.
type Mux struct {
	gateways   map[string]Gateway
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMux creates a mux with the given per-scheme gateways. Nil gateways are skipped.
func NewMux(gateways map[string]Gateway) *Mux {
	m := &Mux{
		gateways:   make(map[string]Gateway),
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		logger:     slog.Default(),
	}
	for scheme, gw := range gateways {
		if gw != nil {
			m.gateways[scheme] = gw
		}
	}
	return m
}

// WithLogger sets a custom logger for the mux
func (m *Mux) WithLogger(logger *slog.Logger) *Mux {
	m.logger = logger
	return m
}

// WithHTTPClient sets the client used for http(s) fetches.
func (m *Mux) WithHTTPClient(client *http.Client) *Mux {
	m.httpClient = client
	return m
}

func (m *Mux) gateway(scheme string) (Gateway, error) {
	gw, ok := m.gateways[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway configured for %s://", ErrUnsupportedScheme, scheme)
	}
	return gw, nil
}

// Fetch copies uri to the exact local path dest. uri may be s3://, gs://,
// http(s):// or a local path.
func (m *Mux) Fetch(ctx context.Context, uri, dest string) error {
	m.logger.DebugContext(ctx, "fetching",
		slog.String("uri", uri),
		slog.String("dest", dest),
	)

	switch {
	case strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://"):
		return m.fetchHTTP(ctx, uri, dest)
	case strings.Contains(uri, "://"):
		u, err := ParseURI(uri)
		if err != nil {
			return err
		}
		gw, err := m.gateway(u.Scheme)
		if err != nil {
			return err
		}
		if err := gw.Download(ctx, u.Bucket, u.Key, dest); err != nil {
			return fmt.Errorf("failed to download %s: %w", uri, err)
		}
		return nil
	default:
		return copyLocal(uri, dest)
	}
}

// Upload puts src under bucket/prefix and returns the object URI. bucket
// follows ParseBucket.
func (m *Mux) Upload(ctx context.Context, src, bucket, prefix string) (string, error) {
	scheme, name := ParseBucket(bucket)
	gw, err := m.gateway(scheme)
	if err != nil {
		return "", err
	}

	key := path.Join(prefix, filepath.Base(src))
	if err := gw.Upload(ctx, src, name, key); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(src), err)
	}

	uri := URI{Scheme: scheme, Bucket: name, Key: key}.String()
	m.logger.InfoContext(ctx, "uploaded product", slog.String("uri", uri))
	return uri, nil
}

// ListGSLCs returns the URIs of GSLC product files under bucket/prefix in
// listing order.
func (m *Mux) ListGSLCs(ctx context.Context, bucket, prefix string) ([]string, error) {
	scheme, name := ParseBucket(bucket)
	gw, err := m.gateway(scheme)
	if err != nil {
		return nil, err
	}
	return ListGSLCs(ctx, gw, scheme, name, prefix)
}

// ListGSLCs filters a gateway listing down to GSLC product files.
func ListGSLCs(ctx context.Context, gw Gateway, scheme, bucket, prefix string) ([]string, error) {
	objects, err := gw.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s://%s/%s: %w", scheme, bucket, prefix, err)
	}

	uris := make([]string, 0, len(objects))
	for _, obj := range objects {
		if IsGSLC(obj.Key) {
			uris = append(uris, URI{Scheme: scheme, Bucket: bucket, Key: obj.Key}.String())
		}
	}
	return uris, nil
}

func (m *Mux) fetchHTTP(ctx context.Context, uri, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fetch %s returned status %d: %s", uri, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return WriteFile(dest, resp.Body)
}

// WriteFile streams r into dest through a temporary file in the same
// directory, so dest only ever appears complete.
func WriteFile(dest string, r io.Reader) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return nil
}

func copyLocal(src, dest string) error {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	destAbs, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if srcAbs == destAbs {
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()
	return WriteFile(dest, f)
}
