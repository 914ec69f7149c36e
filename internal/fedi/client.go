package fedi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"chorus/internal/domain"
)

const contentTypeActivity = "application/activity+json"

// Client talks to the local instance's federated API. Every network
// failure or non-2xx status surfaces as domain.ErrTransport; callers never
// see a partial body.
type Client struct {
	base   string
	http   *http.Client
	signer domain.Signer
}

// NewClient returns a Client for the given server base URL. signer may be
// nil when the instance does not require signed requests (dev servers).
func NewClient(base string, httpClient *http.Client, signer domain.Signer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, http: httpClient, signer: signer}
}

// Send posts body to path.
func (c *Client) Send(ctx context.Context, path string, body []byte, contentType string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body, contentType)
}

// Fetch gets path.
func (c *Client) Fetch(ctx context.Context, path string, contentType string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, contentType)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", contentType)
	}
	if c.signer != nil {
		sig, err := c.signer.Sign(req.URL.Host, path, body)
		if err != nil {
			return nil, fmt.Errorf("%w: sign request: %v", domain.ErrTransport, err)
		}
		req.Header.Set("Signature", sig)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: %s %s: %s", domain.ErrTransport, method, path, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrTransport, err)
	}
	return b, nil
}

// PublishActivity posts an activity to the actor's outbox.
func (c *Client) PublishActivity(ctx context.Context, username string, act domain.Activity) error {
	b, err := json.Marshal(act)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, "/users/"+url.PathEscape(username)+"/outbox", b, contentTypeActivity)
	return err
}

// FetchInbox retrieves one ordered inbox page.
func (c *Client) FetchInbox(ctx context.Context, username, view, cursor string) (domain.Collection, error) {
	path := "/users/" + url.PathEscape(username) + "/inbox"
	q := url.Values{}
	if view != "" {
		q.Set("view", view)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	b, err := c.Fetch(ctx, path, contentTypeActivity)
	if err != nil {
		return domain.Collection{}, err
	}
	var col domain.Collection
	if err := json.Unmarshal(b, &col); err != nil {
		return domain.Collection{}, fmt.Errorf("%w: malformed collection", domain.ErrFormat)
	}
	return col, nil
}

// FetchIdentityKey retrieves a peer's published identity-key instrument.
func (c *Client) FetchIdentityKey(ctx context.Context, peer domain.ActorID) (domain.Instrument, error) {
	b, err := c.Fetch(ctx, "/keys/"+url.PathEscape(string(peer))+"/identity", contentTypeActivity)
	if err != nil {
		return domain.Instrument{}, err
	}
	var inst domain.Instrument
	if err := json.Unmarshal(b, &inst); err != nil {
		return domain.Instrument{}, fmt.Errorf("%w: malformed identity instrument", domain.ErrFormat)
	}
	return inst, nil
}

// ClaimOneTimeKey consumes one of the peer's published one-time keys.
// The claim is destructive server-side: no two establishments ever receive
// the same key. Exhaustion is reported as ErrKeyExchangeFailed.
func (c *Client) ClaimOneTimeKey(ctx context.Context, peer domain.ActorID) (domain.Instrument, error) {
	b, err := c.Send(ctx, "/keys/"+url.PathEscape(string(peer))+"/claim", nil, contentTypeActivity)
	if err != nil {
		return domain.Instrument{}, err
	}
	var inst domain.Instrument
	if err := json.Unmarshal(b, &inst); err != nil || inst.Kind != domain.KindOneTimeKey {
		return domain.Instrument{}, fmt.Errorf("%w: claim returned no usable key", domain.ErrKeyExchangeFailed)
	}
	return inst, nil
}

// OneTimeKeyCount returns how many one-time keys remain published and
// unclaimed for the actor.
func (c *Client) OneTimeKeyCount(ctx context.Context, actor domain.ActorID) (int, error) {
	b, err := c.Fetch(ctx, "/keys/"+url.PathEscape(string(actor))+"/count", contentTypeActivity)
	if err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		// Some servers answer with a bare integer.
		n, convErr := strconv.Atoi(string(bytes.TrimSpace(b)))
		if convErr != nil {
			return 0, fmt.Errorf("%w: malformed key count", domain.ErrFormat)
		}
		return n, nil
	}
	return out.Count, nil
}

// PublishKeys posts a batch of key-material instruments to the actor's
// key directory (initial credential issuance or replenishment).
func (c *Client) PublishKeys(ctx context.Context, actor domain.ActorID, insts []domain.Instrument) error {
	b, err := json.Marshal(insts)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, "/keys/"+url.PathEscape(string(actor)), b, contentTypeActivity)
	return err
}

// Compile-time assertion that Client implements domain.Transport.
var _ domain.Transport = (*Client)(nil)
