package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// FetchTimeout applies when a request carries no timeout of its own.
const FetchTimeout = 20 * time.Second

// HTTPFetcher downloads feeds over HTTP with conditional requests and parses them.
type HTTPFetcher struct {
	httpClient *http.Client
	parser     *Parser
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(httpClient *http.Client, parser *Parser) *HTTPFetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if parser == nil {
		parser = NewParser()
	}
	return &HTTPFetcher{httpClient: httpClient, parser: parser}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) FetchResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = FetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return FetchResult{Status: http.StatusInternalServerError, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}
	if req.Modified != "" {
		httpReq.Header.Set("If-Modified-Since", req.Modified)
	}

	// A move only counts as permanent when every hop of the chain was permanent.
	redirects, permanent := 0, true
	client := *f.httpClient
	client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		redirects++
		if r.Response != nil {
			code := r.Response.StatusCode
			if code != http.StatusMovedPermanently && code != http.StatusPermanentRedirect {
				permanent = false
			}
		}
		return nil
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return FetchResult{Status: http.StatusRequestTimeout, Err: err}
		}
		return FetchResult{Status: http.StatusInternalServerError, Err: fmt.Errorf("failed to fetch feed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{Status: http.StatusNotModified}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return FetchResult{Status: resp.StatusCode, Err: fmt.Errorf("HTTP error: %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return FetchResult{Status: http.StatusRequestTimeout, Err: err}
		}
		return FetchResult{Status: http.StatusInternalServerError, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	info, entries, err := f.parser.Run(data)
	if err != nil {
		return FetchResult{Status: http.StatusInternalServerError, Err: err}
	}

	result := FetchResult{
		Status:   resp.StatusCode,
		ETag:     resp.Header.Get("ETag"),
		Modified: resp.Header.Get("Last-Modified"),
		Info:     info,
		Entries:  entries,
	}
	if redirects > 0 && permanent {
		result.Status = http.StatusMovedPermanently
		result.URL = resp.Request.URL.String()
	}
	return result
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
