// Package gmail is the mail-provider adapter (peripheral, per spec §6): a
// thin client over the Gmail API's messages.list/messages.get (metadata
// scope only) and a draft-send call. The core never sees a raw HTTP status
// or response body — Send turns a non-2xx status or an undecodable response
// into a dispatch.ProviderError; transport errors are returned unwrapped,
// and the dispatcher classifies those as unknown.
package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/outreach-control/internal/dispatch"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/pkg/httpretry"
	"github.com/ignite/outreach-control/internal/reconcile"
)

const apiBase = "https://gmail.googleapis.com/gmail/v1/users/me"

// Credentials are the OAuth2 refresh-token credentials, taken from the gmail
// section of the YAML config; no environment variable overrides them.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Client is the Gmail provider adapter, implementing both
// dispatch.Provider (Send) and reconcile.Searcher (SearchSent,
// SearchInboxReplies).
type Client struct {
	http    httpretry.HTTPDoer
	timeout time.Duration
}

// New builds a Client whose token source auto-refreshes from creds, and
// whose transport retries transient failures via httpretry.
func New(ctx context.Context, creds Credentials, timeout time.Duration) *Client {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}
	token := &oauth2.Token{RefreshToken: creds.RefreshToken}
	httpClient := cfg.Client(ctx, token)

	return &Client{
		http:    httpretry.NewRetryClientWithDelay(httpClient, 3, timeout/30, timeout),
		timeout: timeout,
	}
}

var _ dispatch.Provider = (*Client)(nil)
var _ reconcile.Searcher = (*Client)(nil)

// Send issues the draft's send call. The core passes only draft_id — full
// recipient, subject, and body are resolved by Gmail from the draft itself,
// never reconstructed here.
func (c *Client) Send(ctx context.Context, draftID string) (dispatch.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/drafts/send", apiBase)
	body, err := json.Marshal(map[string]string{"id": draftID})
	if err != nil {
		return dispatch.SendResult{}, err
	}

	resp, err := c.doJSON(ctx, http.MethodPost, url, body)
	if err != nil {
		return dispatch.SendResult{}, err
	}
	defer resp.Body.Close()

	if classified := classifyStatus(resp.StatusCode); classified != "" {
		return dispatch.SendResult{}, &dispatch.ProviderError{Code: classified, Message: fmt.Sprintf("gmail drafts.send returned %d", resp.StatusCode)}
	}

	var decoded struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return dispatch.SendResult{}, &dispatch.ProviderError{Code: domain.ErrUnknown, Message: "failed to decode send response"}
	}

	return dispatch.SendResult{MessageID: decoded.ID, ThreadID: decoded.ThreadID}, nil
}

// SearchSent looks for a sent message carrying the tracking marker,
// metadata only. Never fetches the message body.
func (c *Client) SearchSent(ctx context.Context, trackingID string) (*reconcile.SentMatch, error) {
	query := fmt.Sprintf("in:sent %s", trackingMarker(trackingID))
	msg, err := c.searchOne(ctx, query)
	if err != nil || msg == nil {
		return nil, err
	}
	return &reconcile.SentMatch{ThreadID: msg.ThreadID, SentAt: msg.InternalDate}, nil
}

// SearchInboxReplies looks for a reply referencing the tracking marker.
func (c *Client) SearchInboxReplies(ctx context.Context, trackingID string) (*reconcile.ReplyMatch, error) {
	query := fmt.Sprintf("in:inbox %s", trackingMarker(trackingID))
	msg, err := c.searchOne(ctx, query)
	if err != nil || msg == nil {
		return nil, err
	}
	return &reconcile.ReplyMatch{ThreadID: msg.ThreadID, ReplyAt: msg.InternalDate}, nil
}

type metadataMessage struct {
	ThreadID     string
	InternalDate time.Time
}

func (c *Client) searchOne(ctx context.Context, query string) (*metadataMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/messages?q=%s&maxResults=1", apiBase, url.QueryEscape(query))
	resp, err := c.doJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var listing struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil || len(listing.Messages) == 0 {
		return nil, nil
	}

	return c.fetchMetadata(ctx, listing.Messages[0].ID)
}

func (c *Client) fetchMetadata(ctx context.Context, messageID string) (*metadataMessage, error) {
	url := fmt.Sprintf("%s/messages/%s?format=metadata", apiBase, messageID)
	resp, err := c.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var decoded struct {
		ThreadID     string `json:"threadId"`
		InternalDate string `json:"internalDate"` // epoch millis, as a string
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, nil
	}

	var millis int64
	fmt.Sscanf(decoded.InternalDate, "%d", &millis)
	return &metadataMessage{
		ThreadID:     decoded.ThreadID,
		InternalDate: time.UnixMilli(millis).UTC(),
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func trackingMarker(trackingID string) string {
	return "outreach-track-" + trackingID
}

func classifyStatus(status int) domain.SendErrorCode {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusTooManyRequests:
		return domain.ErrGmail429
	case status >= 500:
		return domain.ErrGmail5xx
	case status == http.StatusBadRequest:
		return domain.ErrGmail400
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrAuth
	default:
		return domain.ErrUnknown
	}
}
