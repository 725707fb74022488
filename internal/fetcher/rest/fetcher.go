// Package rest implements Fetcher against a JSON REST API.
package rest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Cyphercomp/pokefetch/internal/pokedex"
)

// Config controls fetcher behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements pokedex.Fetcher with a plain HTTP client.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newHTTPTransport(),
		},
	}
}

// Fetch executes a single HTTP GET for the named record. A non-200 status is
// returned as a pokedex.StatusError so callers can classify it for retry.
func (f *Fetcher) Fetch(ctx context.Context, request pokedex.FetchRequest) (pokedex.FetchResponse, error) {
	url := f.recordURL(request.Name)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pokedex.FetchResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return pokedex.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return pokedex.FetchResponse{}, &pokedex.StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pokedex.FetchResponse{}, fmt.Errorf("read body from %s: %w", url, err)
	}

	return pokedex.FetchResponse{
		Name:       request.Name,
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

func (f *Fetcher) recordURL(name string) string {
	base := strings.TrimRight(f.cfg.BaseURL, "/")
	return base + "/pokemon/" + pokedex.NormalizeName(name)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
