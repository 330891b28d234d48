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

	"github.com/ZanzyTHEbar/errbuilder-go"

	"rezgo/internal/shared"
)

// RetryConfig bounds HTTP fetch retries with exponential backoff.
type RetryConfig struct {
	Retries   int
	BaseDelay time.Duration
	Timeout   time.Duration
}

const maxHTTPRetryDelay = 30 * time.Second

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	return c
}

// fetchHTTP downloads the source and extracts recognized archives into
// the cache slot; a plain file is stored as-is.
func (f *Fetcher) fetchHTTP(ctx context.Context, url string, slot string) error {
	resp, err := doRequest(ctx, url, f.retry)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("http fetch failed").
			WithCause(shared.HTTPStatusError(resp.StatusCode, url))
	}

	kind := archiveKind(url, resp.Header.Get("Content-Type"))
	if kind == archiveNone {
		name := filepath.Base(strings.SplitN(url, "?", 2)[0])
		if name == "" || name == "." || name == "/" {
			name = "source"
		}
		out, err := os.Create(filepath.Join(slot, name))
		if err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to store download").
				WithCause(err)
		}
		defer out.Close()
		if _, err := io.Copy(out, resp.Body); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to store download").
				WithCause(err)
		}
		return nil
	}
	return extract(kind, resp.Body, slot)
}

// doRequest issues a GET with bounded retries; 5xx and 429 responses
// retry with exponential backoff plus jitter.
func doRequest(ctx context.Context, url string, cfg RetryConfig) (*http.Response, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	var lastErr error
	for attempt := 0; attempt < cfg.Retries; attempt++ {
		if ctx.Err() != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeCanceled).
				WithMsg("fetch canceled").
				WithCause(ctx.Err())
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to create request").
				WithCause(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeCanceled).
					WithMsg("fetch canceled").
					WithCause(ctx.Err())
			}
			lastErr = err
			if attempt < cfg.Retries-1 {
				time.Sleep(retryDelay(attempt, cfg))
				continue
			}
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("fetch failed").
				WithCause(err)
		}
		if (resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests) && attempt < cfg.Retries-1 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			time.Sleep(retryDelay(attempt, cfg))
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("fetch failed")
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("fetch failed").
		WithCause(lastErr)
}

func retryDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := cfg.BaseDelay * time.Duration(1<<attempt)
	if delay > maxHTTPRetryDelay {
		delay = maxHTTPRetryDelay
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(delay/2+1))
	return delay + jitter
}
