// Package fetch downloads release archives to a local path.
//
// The response body is streamed to a temporary sibling of the destination and
// renamed into place once fully written; a destination path that exists is
// always a complete download. Temporary files abandoned by an interrupted
// download are removed by the next download of the same destination. There
// is no retry and no resume.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/fault"
)

// DefaultTimeout bounds a whole download including the body transfer.
const DefaultTimeout = 10 * time.Minute

// Fetcher materializes a URL at a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

// Client is the HTTP implementation of Fetcher.
type Client struct {
	http *http.Client
}

// NewClient returns a Client whose requests time out after timeout. A zero
// timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewClientWith wraps an existing http.Client, e.g. one from httptest.
func NewClientWith(c *http.Client) *Client {
	return &Client{http: c}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Fetch downloads url to dst, creating any missing parent directories.
func (c *Client) Fetch(ctx context.Context, url, dst string) error {
	logger := ctxlog.FromContext(ctx).With("url", url, "path", dst)

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Filesystem("mkdir", dir, err)
	}

	removeStaleParts(ctx, dst)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fault.Network("build request", url, err)
	}

	logger.Debug("Starting download.")
	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Network("fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fault.Network("fetch", url, fmt.Errorf("unexpected status %s", resp.Status))
	}

	tmp := filepath.Join(dir, partPrefix(dst)+uuid.NewString())
	written, err := writeFile(tmp, resp.Body)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fault.Filesystem("rename", dst, err)
	}

	logger.Debug("Download complete.", "bytes", written)
	return nil
}

func partPrefix(dst string) string {
	return "." + filepath.Base(dst) + ".part-"
}

// removeStaleParts deletes temporary files that interrupted downloads of dst
// left behind. A cache root is owned by one process at a time, so any such
// file is abandoned.
func removeStaleParts(ctx context.Context, dst string) {
	logger := ctxlog.FromContext(ctx)
	dir := filepath.Dir(dst)
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("Failed to scan for stale partial downloads.", "dir", dir, "error", err)
		return
	}
	prefix := partPrefix(dst)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		stale := filepath.Join(dir, e.Name())
		if err := os.Remove(stale); err != nil {
			logger.Warn("Failed to remove stale partial download.", "path", stale, "error", err)
			continue
		}
		logger.Debug("Removed stale partial download.", "path", stale)
	}
}

// writeFile streams body into a new file at path. Read errors come from the
// connection and are reported as network errors.
func writeFile(path string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fault.Filesystem("create", path, err)
	}

	written, copyErr := io.Copy(f, &bodyReader{r: body})
	closeErr := f.Close()

	if copyErr != nil {
		if rerr, ok := copyErr.(*readError); ok {
			return written, fault.Network("read body", path, rerr.err)
		}
		return written, fault.Filesystem("write", path, copyErr)
	}
	if closeErr != nil {
		return written, fault.Filesystem("close", path, closeErr)
	}
	return written, nil
}

// bodyReader marks errors raised while reading the response so they can be
// told apart from write errors after io.Copy returns.
type bodyReader struct {
	r io.Reader
}

type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &readError{err: err}
	}
	return n, err
}
