package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"theblob/pkg/domain"
)

// Client talks to the feed server's REST API. It implements both Fetcher and
// Searcher for the session controllers.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a feed API client. Zero timeout falls back to 10 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// blobsEnvelope is the JSON envelope the server wraps blob lists in
type blobsEnvelope struct {
	Blobs []domain.Blob `json:"blobs"`
}

// FetchPage loads one page of the public feed
func (c *Client) FetchPage(ctx context.Context, page int) ([]domain.Blob, error) {
	u := c.baseURL + "/api/v1/blobs?page=" + strconv.Itoa(page)
	return c.getBlobs(ctx, u)
}

// Search queries the public feed
func (c *Client) Search(ctx context.Context, query string) ([]domain.Blob, error) {
	u := c.baseURL + "/api/v1/search?q=" + url.QueryEscape(query)
	return c.getBlobs(ctx, u)
}

func (c *Client) getBlobs(ctx context.Context, u string) ([]domain.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)
	}

	var envelope blobsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return envelope.Blobs, nil
}
