// Package crm is the CRM tag-search adapter (peripheral, per spec §6): a
// thin client that looks up prospects carrying a given tag. It never makes
// gating decisions; it only returns raw contact records for the caller
// (cmd/outreachctl scan/propose) to feed into the core.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/outreach-control/internal/pkg/httpretry"
)

// Contact is a prospect record returned by a tag search.
type Contact struct {
	CompanyID string `json:"company_id"`
	Email     string `json:"email"`
	Domain    string `json:"domain"`
	Tag       string `json:"tag"`
}

// Client searches the CRM for contacts carrying a given tag.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
	timeout time.Duration
}

// New builds a Client against baseURL, authenticating with apiKey and
// retrying transient failures via httpretry.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpretry.NewRetryClientWithDelay(&http.Client{Timeout: timeout}, 3, timeout/30, timeout),
		timeout: timeout,
	}
}

// SearchByTag returns every contact carrying tag.
func (c *Client) SearchByTag(ctx context.Context, tag string) ([]Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/contacts?tag=%s", c.baseURL, url.QueryEscape(tag))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: search by tag %q: %w", tag, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crm: search by tag %q returned status %d", tag, resp.StatusCode)
	}

	var decoded struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("crm: decoding search response: %w", err)
	}
	return decoded.Contacts, nil
}
