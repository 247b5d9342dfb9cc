package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultFetchTimeout = 30 * time.Second

// HTTPSource fetches build-number files over HTTP, for example from a raw
// file endpoint of the upstream repository.
type HTTPSource struct {
	// URL contains an {ecosystem} placeholder.
	URL    string
	Client *http.Client
}

// NewHTTPSource returns an HTTPSource with a default client.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: defaultFetchTimeout}}
}

// CurrentRevision GETs the build-number file for ecosystem.
func (s *HTTPSource) CurrentRevision(ctx context.Context, ecosystem string) (int, error) {
	url := expand(s.URL, ecosystem)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("upstream: %s: build request: %w", ecosystem, err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upstream: %s: http get: %w", ecosystem, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("upstream: %s: unexpected status %d: %s", ecosystem, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	n, err := ParseBuildNumber(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, fmt.Errorf("upstream: %s: %w", ecosystem, err)
	}
	return n, nil
}
