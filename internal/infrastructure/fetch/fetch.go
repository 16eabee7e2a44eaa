// Package fetch provides the artifact fetchers used by the file
// repository: an HTTP downloader with checksum verification and a local
// file reader for artifacts already on disk.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"time"

	"plugincheck.dev/cli/internal/core/artifact"
)

// Spec tells a fetcher where an artifact's bytes live. Mapping a key to a
// Spec (registry metadata lookup) is the caller's concern.
type Spec struct {
	// URL is the download location for HTTP fetching.
	URL string
	// Path is the local file location for file fetching.
	Path string
	// SHA256 is the optional expected payload checksum, lowercase hex.
	SHA256 string
}

// Locator resolves an artifact key to its fetch spec.
type Locator interface {
	Locate(ctx context.Context, key artifact.Key) (Spec, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, key artifact.Key) (Spec, error)

func (f LocatorFunc) Locate(ctx context.Context, key artifact.Key) (Spec, error) {
	return f(ctx, key)
}

// HTTPFetcher downloads artifact payloads over HTTP.
type HTTPFetcher struct {
	client  *http.Client
	locator Locator
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithTimeout bounds a single download. Zero keeps the default.
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// NewHTTPFetcher creates an HTTP fetcher. The default timeout is generous
// to cover large plugin distributions.
func NewHTTPFetcher(locator Locator, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: 5 * time.Minute},
		locator: locator,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the artifact named by key. When the spec carries a
// checksum, the returned reader verifies it at EOF; a mismatch surfaces as
// a read error before the repository publishes the file.
func (f *HTTPFetcher) Fetch(ctx context.Context, key artifact.Key) (io.ReadCloser, error) {
	spec, err := f.locator.Locate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to locate artifact %s: %w", key.String(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "plugincheck-cli/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if spec.SHA256 == "" {
		return resp.Body, nil
	}
	return &checksumReader{rc: resp.Body, hash: sha256.New(), want: spec.SHA256}, nil
}

// checksumReader verifies the payload hash once the stream is exhausted.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash
	want string
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if n > 0 {
		c.hash.Write(p[:n])
	}
	if err == io.EOF {
		if got := hex.EncodeToString(c.hash.Sum(nil)); got != c.want {
			return n, fmt.Errorf("checksum mismatch: expected %s, got %s", c.want, got)
		}
	}
	return n, err
}

func (c *checksumReader) Close() error { return c.rc.Close() }

// LocalFetcher serves artifacts from files already on disk, typically
// paths given on the command line.
type LocalFetcher struct {
	paths map[artifact.Key]string
}

// NewLocalFetcher creates a fetcher over a fixed key-to-path mapping.
func NewLocalFetcher(paths map[artifact.Key]string) *LocalFetcher {
	return &LocalFetcher{paths: paths}
}

// Fetch opens the mapped file for key.
func (f *LocalFetcher) Fetch(ctx context.Context, key artifact.Key) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := f.paths[key]
	if !ok {
		return nil, fmt.Errorf("no local file known for artifact %s", key.String())
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return file, nil
}
