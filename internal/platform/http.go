package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tammahq/tamma/internal/types"
)

// DefaultTimeout bounds each bridge request.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps status responses; a snapshot is small by contract.
const maxResponseSize = 4 * 1024 * 1024

// HTTPProvider is a StatusProvider speaking to a platform bridge over HTTP.
// The bridge owns the provider-specific REST/GraphQL details (GitHub, GitLab,
// CI systems); the engine only consumes its normalized JSON:
//
//	GET  {base}/resources/{id}/status               -> types.ResourceStatus
//	POST {base}/resources/{id}/checks/{check}/retry
//	POST {base}/resources/{id}/comments             <- {"text": ...}
type HTTPProvider struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewHTTPProvider creates a provider for the bridge at baseURL.
func NewHTTPProvider(baseURL, token string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new provider with a custom HTTP client.
func (p *HTTPProvider) WithHTTPClient(httpClient *http.Client) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:    p.BaseURL,
		Token:      p.Token,
		HTTPClient: httpClient,
	}
}

// resourcePath builds the per-resource URL path.
func (p *HTTPProvider) resourcePath(resourceID string, rest ...string) string {
	u := p.BaseURL + "/resources/" + url.PathEscape(resourceID)
	for _, seg := range rest {
		u += "/" + url.PathEscape(seg)
	}
	return u
}

// doRequest performs one request with authentication. Retries are the retry
// engine's job, not the transport's, so a failure surfaces immediately.
func (p *HTTPProvider) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bridge error: %s (status %d)", string(respBody), resp.StatusCode)
	}
	return respBody, nil
}

// GetResourceStatus implements StatusProvider.
func (p *HTTPProvider) GetResourceStatus(ctx context.Context, resourceID string) (*types.ResourceStatus, error) {
	respBody, err := p.doRequest(ctx, http.MethodGet, p.resourcePath(resourceID, "status"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status for %s: %w", resourceID, err)
	}

	var status types.ResourceStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &status, nil
}

// RetryCheck implements StatusProvider.
func (p *HTTPProvider) RetryCheck(ctx context.Context, resourceID, checkID string) error {
	urlStr := p.resourcePath(resourceID, "checks", checkID, "retry")
	if _, err := p.doRequest(ctx, http.MethodPost, urlStr, nil); err != nil {
		return fmt.Errorf("failed to retry check %s on %s: %w", checkID, resourceID, err)
	}
	return nil
}

// PostComment implements StatusProvider.
func (p *HTTPProvider) PostComment(ctx context.Context, resourceID, text string) error {
	urlStr := p.resourcePath(resourceID, "comments")
	if _, err := p.doRequest(ctx, http.MethodPost, urlStr, map[string]string{"text": text}); err != nil {
		return fmt.Errorf("failed to post comment on %s: %w", resourceID, err)
	}
	return nil
}

var _ StatusProvider = (*HTTPProvider)(nil)
