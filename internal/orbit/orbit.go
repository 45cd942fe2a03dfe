// Package orbit locates and downloads Sentinel-1 orbit state vector files
// from the public s1-orbits bucket.
package orbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robert-malhotra/hyp3-srg/internal/granule"
	"github.com/robert-malhotra/hyp3-srg/internal/storage"
)

// Public orbit archive.
const (
	DefaultBucket = "s1-orbits"
	DefaultRegion = "us-west-2"
)

// Orbit file types, in order of preference.
const (
	Precise    = "AUX_POEORB"
	Restituted = "AUX_RESORB"
)

const validityLayout = "20060102T150405"

// ErrOrbitNotFound is returned when no orbit file covers a scene.
var ErrOrbitNotFound = errors.New("orbit file not found")

// Client finds orbit files for scenes.
type Client struct {
	gateway storage.Gateway
	bucket  string
	logger  *slog.Logger
}

// NewClient creates a client that lists and downloads through gw.
func NewClient(gw storage.Gateway) *Client {
	return &Client{gateway: gw, bucket: DefaultBucket, logger: slog.Default()}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithBucket overrides the orbit bucket.
func (c *Client) WithBucket(bucket string) *Client {
	c.bucket = bucket
	return c
}

// Validity parses the V<start>_<stop> window from an orbit file name.
func Validity(key string) (start, stop time.Time, err error) {
	name := strings.TrimSuffix(path.Base(key), ".EOF")
	_, window, ok := strings.Cut(name, "_V")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("orbit file %q has no validity window", key)
	}
	a, b, ok := strings.Cut(window, "_")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("orbit file %q has a malformed validity window", key)
	}
	if start, err = time.Parse(validityLayout, a); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("orbit file %q: %w", key, err)
	}
	if stop, err = time.Parse(validityLayout, b); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("orbit file %q: %w", key, err)
	}
	return start, stop, nil
}

// Find returns the key of the newest orbit file covering the scene. Precise
// orbits win over restituted ones.
func (c *Client) Find(ctx context.Context, scene string) (string, error) {
	g, err := granule.Parse(scene)
	if err != nil {
		return "", err
	}
	sceneStart, err := time.Parse(validityLayout, g.Start)
	if err != nil {
		return "", fmt.Errorf("scene %s: %w", g.Name, err)
	}
	sceneStop, err := time.Parse(validityLayout, g.Stop)
	if err != nil {
		return "", fmt.Errorf("scene %s: %w", g.Name, err)
	}

	for _, kind := range []string{Precise, Restituted} {
		prefix := fmt.Sprintf("%s/%s_OPER_%s_OPOD_", kind, g.Platform, kind)
		objects, err := c.gateway.List(ctx, c.bucket, prefix)
		if err != nil {
			return "", fmt.Errorf("failed to list orbit files: %w", err)
		}

		var matches []string
		for _, obj := range objects {
			if !strings.HasSuffix(obj.Key, ".EOF") {
				continue
			}
			start, stop, err := Validity(obj.Key)
			if err != nil {
				c.logger.DebugContext(ctx, "skipping orbit file", slog.String("key", obj.Key), slog.String("error", err.Error()))
				continue
			}
			if !start.After(sceneStart) && !stop.Before(sceneStop) {
				matches = append(matches, obj.Key)
			}
		}
		if len(matches) == 0 {
			continue
		}
		// Production time follows the shared prefix, so the newest sorts last.
		sort.Strings(matches)
		return matches[len(matches)-1], nil
	}

	return "", fmt.Errorf("%w: %s", ErrOrbitNotFound, g.Name)
}

// FetchForScene downloads the orbit file for scene into destDir and returns
// its path. An orbit file already present is reused.
func (c *Client) FetchForScene(ctx context.Context, scene, destDir string) (string, error) {
	key, err := c.Find(ctx, scene)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(destDir, path.Base(key))
	if _, err := os.Stat(dest); err == nil {
		c.logger.DebugContext(ctx, "orbit file already present", slog.String("path", dest))
		return dest, nil
	}

	c.logger.InfoContext(ctx, "downloading orbit file",
		slog.String("scene", granule.SceneName(scene)),
		slog.String("key", key),
	)
	if err := c.gateway.Download(ctx, c.bucket, key, dest); err != nil {
		return "", err
	}
	return dest, nil
}
