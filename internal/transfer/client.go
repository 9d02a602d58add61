// Package transfer moves clips over plain HTTP: downloading remote source
// videos for analysis and pushing annotated results to caller-provided
// signed URLs.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// TransferError represents a non-2xx response from the remote side.
type TransferError struct {
	StatusCode int
	Body       string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx) are
// considered permanent.
func (e *TransferError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Client is an HTTP transfer client with a byte cap on downloads. The cap
// mirrors the clip size limit enforced on direct uploads, so a remote URL is
// not a way around it.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

func NewClient(maxBytes int64, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Download fetches rawURL into dest. The body streams through a temp file in
// dest's directory and is renamed into place, so a partial download never
// appears under the final name.
func (c *Client) Download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransferError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return fmt.Errorf("remote clip is %d bytes, limit is %d", resp.ContentLength, c.maxBytes)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		// Read one extra byte so a stream right at the limit still passes.
		src = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download body: %w", err)
	}
	if c.maxBytes > 0 && n > c.maxBytes {
		tmp.Close()
		return fmt.Errorf("remote clip exceeds %d bytes", c.maxBytes)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("move download into place: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("downloaded clip", "bytes", n, "dest", dest)
	}
	return nil
}

// Upload PUTs the file at path to rawURL. A retryable failure (5xx or a
// transport error) is retried exactly once; client errors are permanent.
func (c *Client) Upload(ctx context.Context, rawURL, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat upload source: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if c.logger != nil {
				c.logger.Warn("retrying upload", "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		lastErr = c.put(ctx, rawURL, path)
		if lastErr == nil {
			return nil
		}
		var te *TransferError
		if errors.As(lastErr, &te) && !te.IsRetryable() {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) put(ctx context.Context, rawURL, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat upload source: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, f)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if c.logger != nil {
			c.logger.Info("uploaded result", "bytes", info.Size())
		}
		return nil
	}

	return &TransferError{StatusCode: resp.StatusCode, Body: string(respBody)}
}
