package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultFetchMaxBytes = 25 << 20
	defaultUserAgent     = "pixelcut/1.0"
)

// Fetcher loads the raw bytes of a source image.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

type HTTPFetcherConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// HTTPFetcher downloads source images over HTTP. Transport failures and
// non-2xx answers both wrap ErrUpstreamFetch.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultFetchMaxBytes
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: status=%d", ErrUpstreamFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, f.maxBytes)
	}
	return data, nil
}

// LocalFileFetcher reads sources from the local filesystem.
type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", source, err)
	}
	return data, nil
}
