package asf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/robert-malhotra/hyp3-srg/internal/creds"
	"github.com/robert-malhotra/hyp3-srg/internal/storage"
)

const userAgent = "hyp3-srg/1.0"

// maxRedirects bounds the datapool -> URS -> datapool hop chain.
const maxRedirects = 10

// Downloader fetches products from the ASF distribution endpoints. Earthdata
// credentials are sent only to the URS login host.
type Downloader struct {
	timeout  time.Duration
	authHost string
	logger   *slog.Logger
}

// NewDownloader creates a downloader. A zero timeout disables the
// per-request deadline; large raw products can take a long time.
func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{
		timeout:  timeout,
		authHost: creds.EarthdataHost,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the downloader
func (d *Downloader) WithLogger(logger *slog.Logger) *Downloader {
	d.logger = logger
	return d
}

// WithAuthHost overrides the host that receives basic auth.
func (d *Downloader) WithAuthHost(host string) *Downloader {
	d.authHost = host
	return d
}

func (d *Downloader) client(c creds.Credentials) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: d.timeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("stopped after too many redirects")
			}
			if req.URL.Host == d.authHost {
				req.SetBasicAuth(c.Username, c.Password)
			} else {
				req.Header.Del("Authorization")
			}
			return nil
		},
	}, nil
}

// Download writes the product at url to dest. dest only appears once the
// whole body has been received.
func (d *Downloader) Download(ctx context.Context, url, dest string, c creds.Credentials) error {
	client, err := d.client(c)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if req.URL.Host == d.authHost {
		req.SetBasicAuth(c.Username, c.Password)
	}

	d.logger.InfoContext(ctx, "downloading product",
		slog.String("url", url),
		slog.String("dest", dest),
	)
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("download of %s was unauthorized; check Earthdata credentials: %s", url, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("download of %s returned status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := storage.WriteFile(dest, resp.Body); err != nil {
		return err
	}

	d.logger.InfoContext(ctx, "download complete",
		slog.String("dest", dest),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
