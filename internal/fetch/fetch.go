// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package fetch retrieves scripts, packages and resource files referenced by
// a page. Remote URLs are fetched over HTTP with retries; relative references
// are resolved against a base location. Successful remote fetches are
// written to a cache that serves as a fallback when the network fails.
package fetch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

// Default retry settings.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 200 * time.Millisecond
	DefaultMaxBytes = 16 << 20
)

// ErrNotFound is returned when the referenced resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Client fetches resources. The zero value is not usable; call New.
type Client struct {
	http     *http.Client
	fs       afero.Fs
	base     string
	cacheDir string
	attempts uint64
	backoff  time.Duration
	maxBytes int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithFS sets the filesystem used for local references and the cache.
func WithFS(fs afero.Fs) Option {
	return func(cl *Client) { cl.fs = fs }
}

// WithBase sets the location relative references resolve against. It may be
// a directory or an http(s) URL.
func WithBase(base string) Option {
	return func(cl *Client) { cl.base = base }
}

// WithCacheDir enables the offline fallback cache.
func WithCacheDir(dir string) Option {
	return func(cl *Client) { cl.cacheDir = dir }
}

// WithRetry sets the attempt count and initial backoff for remote fetches.
func WithRetry(attempts uint64, backoff time.Duration) Option {
	return func(cl *Client) {
		cl.attempts = attempts
		cl.backoff = backoff
	}
}

// New creates a fetch client.
func New(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		fs:       afero.NewOsFs(),
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the absolute location of ref.
func (c *Client) Resolve(ref string) string {
	if isRemote(ref) || c.base == "" {
		return ref
	}
	if isRemote(c.base) {
		baseURL, err := url.Parse(c.base)
		if err != nil {
			return ref
		}
		if !strings.HasSuffix(baseURL.Path, "/") {
			baseURL.Path = path.Dir(baseURL.Path) + "/"
		}
		refURL, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return baseURL.ResolveReference(refURL).String()
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(c.base, filepath.FromSlash(ref))
}

// Fetch returns the contents of ref.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	loc := c.Resolve(ref)
	if !isRemote(loc) {
		data, err := afero.ReadFile(c.fs, strings.TrimPrefix(loc, "file://"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, oops.In("fetch").With("location", loc).Wrapf(ErrNotFound, "read %s", loc)
			}
			return nil, oops.In("fetch").With("location", loc).Wrap(err)
		}
		return data, nil
	}

	data, err := c.fetchRemote(ctx, loc)
	if err == nil {
		c.store(loc, data)
		return data, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if cached, ok := c.cached(loc); ok {
		slog.Warn("fetch failed, serving cached copy",
			"url", loc,
			"error", err)
		return cached, nil
	}
	return nil, err
}

func (c *Client) fetchRemote(ctx context.Context, loc string) ([]byte, error) {
	var retries uint64
	if c.attempts > 1 {
		retries = c.attempts - 1
	}
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(c.backoff))

	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, http.NoBody)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, loc)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return retry.RetryableError(fmt.Errorf("GET %s: %s", loc, resp.Status))
		case resp.StatusCode >= 300:
			return fmt.Errorf("GET %s: %s", loc, resp.Status)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
		if err != nil {
			return retry.RetryableError(err)
		}
		if int64(len(data)) > c.maxBytes {
			return fmt.Errorf("GET %s: body exceeds %d bytes", loc, c.maxBytes)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, oops.In("fetch").With("url", loc).Wrap(err)
	}
	return body, nil
}

// cacheKey names the cache entry for a URL.
func cacheKey(loc string) string {
	sum := blake2b.Sum256([]byte(loc))
	return hex.EncodeToString(sum[:])
}

func (c *Client) cachePath(loc string) string {
	key := cacheKey(loc)
	return filepath.Join(c.cacheDir, key[:2], key)
}

func (c *Client) store(loc string, data []byte) {
	if c.cacheDir == "" {
		return
	}
	p := c.cachePath(loc)
	if err := c.fs.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		slog.Debug("fetch cache unavailable", "dir", c.cacheDir, "error", err)
		return
	}
	if err := afero.WriteFile(c.fs, p, data, 0o600); err != nil {
		slog.Debug("fetch cache write failed", "url", loc, "error", err)
	}
}

func (c *Client) cached(loc string) ([]byte, bool) {
	if c.cacheDir == "" {
		return nil, false
	}
	data, err := afero.ReadFile(c.fs, c.cachePath(loc))
	if err != nil {
		return nil, false
	}
	return data, true
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
