// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package mediacache resolves mxc:// content URIs to local files.
//
// Downloads land in a flat cache directory keyed by the BLAKE3 hash of
// the URI, so repeated resolutions of the same avatar or attachment hit
// disk instead of the homeserver. Files are written to a temp path and
// renamed into place; a partially downloaded file is never visible
// under its cache name.
//
// Concurrent resolutions of the same URI are coalesced: one download
// runs, the rest wait for its result.
package mediacache

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/parley-im/parley/lib/ref"
)

// Downloader fetches media content from the homeserver.
// *messaging.DirectSession satisfies it.
type Downloader interface {
	DownloadMedia(ctx context.Context, uri ref.ContentURI) (io.ReadCloser, string, error)
}

// Config holds parameters for creating a Resolver.
type Config struct {
	// Dir is the cache directory, created if absent. Required.
	Dir string

	// Downloader fetches content on cache miss. Required.
	Downloader Downloader

	// MaxFileSize rejects downloads larger than this many bytes.
	// Zero means 64 MiB.
	MaxFileSize int64

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Resolver maps content URIs to cached local files.
type Resolver struct {
	dir         string
	downloader  Downloader
	maxFileSize int64
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[string]*fetch
}

// fetch is one in-progress download; waiters block on done.
type fetch struct {
	done chan struct{}
	path string
	err  error
}

// New creates a Resolver, creating the cache directory if needed.
func New(config Config) (*Resolver, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("mediacache: Dir is required")
	}
	if config.Downloader == nil {
		return nil, fmt.Errorf("mediacache: Downloader is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("mediacache: creating %s: %w", config.Dir, err)
	}

	maxFileSize := config.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = 64 << 20
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Resolver{
		dir:         config.Dir,
		downloader:  config.Downloader,
		maxFileSize: maxFileSize,
		logger:      logger,
		inFlight:    make(map[string]*fetch),
	}, nil
}

// Path returns the cache file path for a URI without downloading.
// The file may or may not exist.
func (r *Resolver) Path(uri ref.ContentURI) string {
	sum := blake3.Sum256([]byte(uri.String()))
	return filepath.Join(r.dir, hex.EncodeToString(sum[:]))
}

// Resolve returns a local file path for the URI, downloading on cache
// miss. Cancelling ctx aborts an in-flight download; waiters on a
// download started by another caller get that download's result even
// if their own ctx has more time left.
func (r *Resolver) Resolve(ctx context.Context, uri ref.ContentURI) (string, error) {
	if uri.IsZero() {
		return "", fmt.Errorf("mediacache: content URI is required")
	}

	cachePath := r.Path(uri)
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	r.mu.Lock()
	if existing, ok := r.inFlight[cachePath]; ok {
		r.mu.Unlock()
		select {
		case <-existing.done:
			return existing.path, existing.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	current := &fetch{done: make(chan struct{})}
	r.inFlight[cachePath] = current
	r.mu.Unlock()

	current.path, current.err = r.download(ctx, uri, cachePath)
	close(current.done)

	r.mu.Lock()
	delete(r.inFlight, cachePath)
	r.mu.Unlock()

	return current.path, current.err
}

// ResolveAsync resolves in a background goroutine and invokes callback
// with the result. The returned cancel function aborts the download;
// an aborted resolution invokes callback with the cancellation error.
func (r *Resolver) ResolveAsync(uri ref.ContentURI, callback func(path string, err error)) (cancel func()) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	go func() {
		path, err := r.Resolve(ctx, uri)
		callback(path, err)
	}()
	return cancelCtx
}

func (r *Resolver) download(ctx context.Context, uri ref.ContentURI, cachePath string) (string, error) {
	body, contentType, err := r.downloader.DownloadMedia(ctx, uri)
	if err != nil {
		return "", err
	}
	defer body.Close()

	temp, err := os.CreateTemp(r.dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("mediacache: creating temp file: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	written, err := io.Copy(temp, io.LimitReader(body, r.maxFileSize+1))
	if closeErr := temp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("mediacache: writing %s: %w", uri, err)
	}
	if written > r.maxFileSize {
		return "", fmt.Errorf("mediacache: %s exceeds size limit of %d bytes", uri, r.maxFileSize)
	}

	if err := os.Rename(tempPath, cachePath); err != nil {
		return "", fmt.Errorf("mediacache: installing %s: %w", uri, err)
	}

	r.logger.Debug("media cached",
		"uri", uri,
		"content_type", contentType,
		"bytes", written,
	)
	return cachePath, nil
}

// Purge removes all cached files. Used on logout.
func (r *Resolver) Purge() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("mediacache: listing %s: %w", r.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, entry.Name())); err != nil {
			return fmt.Errorf("mediacache: removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}
