// Package fetcher downloads remote audio and cover art over HTTP with
// retries, outbound rate limiting and size limits.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"trackdrop/internal/cache"
	"trackdrop/internal/config"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-utils/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	bytesPerMB = 1 << 20

	errorBodyLimit = 4 << 10
)

// Failure kinds reported in FetchError.Kind
const (
	KindInvalidURL = "invalid_url"
	KindRequest    = "request"
	KindTooLarge   = "too_large"
	KindEmpty      = "empty"
)

var (
	// ErrUnsupportedScheme is returned for URLs that are not http or https
	ErrUnsupportedScheme = errors.New("url must use http or https")
	// ErrTooLarge is returned when a body exceeds the configured limit
	ErrTooLarge = errors.New("response body exceeds size limit")
	// ErrEmptyBody is returned when the remote responds with no content
	ErrEmptyBody = errors.New("response body is empty")
)

// FetchError describes a failed fetch of URL
type FetchError struct {
	URL  string
	Kind string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves remote audio files and cover images
type Fetcher struct {
	client   *httpkit.Client
	limiter  *rate.Limiter
	covers   *cache.MemoryCache
	maxAudio int64
	maxCover int64
	logger   *logrus.Logger
}

// New creates a fetcher from the fetch section of the configuration
func New(cfg *config.FetchConfig, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		client:   httpkit.New(cfg.Timeout()),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		covers:   cache.NewMemoryCache(cfg.CoverCacheTTL(), 5*time.Minute),
		maxAudio: cfg.MaxAudioMB * bytesPerMB,
		maxCover: cfg.MaxCoverMB * bytesPerMB,
		logger:   logger,
	}
}

// FetchAudio downloads the audio file at rawURL
func (f *Fetcher) FetchAudio(ctx context.Context, rawURL string) ([]byte, error) {
	return f.fetch(ctx, rawURL, f.maxAudio)
}

// FetchCover downloads the image at rawURL. Successful results are cached
// by URL so repeated downloads from one album reuse the same bytes.
func (f *Fetcher) FetchCover(ctx context.Context, rawURL string) ([]byte, error) {
	if data, ok := f.covers.Get(rawURL); ok {
		f.logger.WithField("url", rawURL).Debug("Cover served from cache")
		return data, nil
	}

	data, err := f.fetch(ctx, rawURL, f.maxCover)
	if err != nil {
		return nil, err
	}

	f.covers.Set(rawURL, data)
	return data, nil
}

// Close releases background resources held by the fetcher
func (f *Fetcher) Close() {
	f.covers.Stop()
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindInvalidURL, Err: err}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindRequest, Err: err}
	}

	start := time.Now()
	var data []byte
	op := func() error {
		var err error
		data, err = f.get(ctx, rawURL, limit)
		return err
	}
	if err := retry.Do(ctx, f.client.RetryConfig, "GET "+rawURL, op, f.shouldRetry); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, &FetchError{URL: rawURL, Kind: KindTooLarge, Err: err}
		}
		return nil, &FetchError{URL: rawURL, Kind: KindRequest, Err: err}
	}

	if len(data) == 0 {
		return nil, &FetchError{URL: rawURL, Kind: KindEmpty, Err: ErrEmptyBody}
	}

	f.logger.WithFields(logrus.Fields{
		"url":      rawURL,
		"bytes":    len(data),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Fetched remote file")

	return data, nil
}

// get performs a single GET and reads at most limit bytes of the body.
// Bodies that declare or stream more than limit fail with ErrTooLarge.
func (f *Fetcher) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpkit.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := httpkit.HandleLimitedResponse(resp, errorBodyLimit)
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return nil, &httpkit.NonRetryableHTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	if resp.ContentLength > limit {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content length %d > %d bytes", ErrTooLarge, resp.ContentLength, limit)
	}

	data, err := httpkit.HandleLimitedResponse(resp, limit+1)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

func (f *Fetcher) shouldRetry(err error) bool {
	if errors.Is(err, ErrTooLarge) {
		return false
	}
	return f.client.IsHTTPRetryableError(err)
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrUnsupportedScheme
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}
