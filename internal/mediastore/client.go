package mediastore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/raditia/duet-media/internal/signing"
)

// listPageSize is the page size requested from the store's listing endpoint.
const listPageSize = 50

// Client calls the remote store's admin API. Listing and destroy are
// idempotent, so calls go through a retrying HTTP client and a circuit
// breaker guarding against a misbehaving upstream.
type Client struct {
	cloudName string
	apiKey    string
	apiSecret string
	baseURL   string

	http    *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
	now     func() time.Time
}

// ClientOptions configures a Client.
type ClientOptions struct {
	CloudName string
	APIKey    string
	APISecret string
	BaseURL   string
	Logger    zerolog.Logger
}

// NewClient creates an admin API client for the given account.
func NewClient(opts ClientOptions) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "mediastore-admin",
		Timeout: 30 * time.Second,
	})

	return &Client{
		cloudName: opts.CloudName,
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      rc,
		breaker:   breaker,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// ListResources fetches one page of the store's native listing for the given
// resource type: up to 50 items, newest first, context and tags included.
// cursor may be empty for the first page.
func (c *Client) ListResources(ctx context.Context, kind Kind, cursor string) (*ListResponse, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("mediastore: invalid resource type %q", kind)
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(listPageSize))
	q.Set("context", "true")
	q.Set("tags", "true")
	q.Set("direction", "desc")
	if cursor != "" {
		q.Set("next_cursor", cursor)
	}

	endpoint := fmt.Sprintf("%s/%s/resources/%s?%s", c.baseURL, c.cloudName, kind, q.Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var list ListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("mediastore: decode listing: %w", err)
	}
	return &list, nil
}

// Destroy issues a signed destroy call for the given asset. The signature
// covers public_id and timestamp only. The caller decides how to interpret
// a "not found" result; see DestroyResult.Deleted.
func (c *Client) Destroy(ctx context.Context, publicID string, kind Kind) (*DestroyResult, error) {
	if publicID == "" {
		return nil, fmt.Errorf("mediastore: public_id is required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("mediastore: invalid resource type %q", kind)
	}

	ts := strconv.FormatInt(c.now().Unix(), 10)
	sig, err := signing.Sign(map[string]string{
		"public_id": publicID,
		"timestamp": ts,
	}, c.apiSecret)
	if err != nil {
		return nil, fmt.Errorf("mediastore: sign destroy: %w", err)
	}

	form := url.Values{}
	form.Set("public_id", publicID)
	form.Set("timestamp", ts)
	form.Set("api_key", c.apiKey)
	form.Set("signature", sig)

	endpoint := fmt.Sprintf("%s/%s/%s/destroy", c.baseURL, c.cloudName, kind)
	body, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}

	var res DestroyResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("mediastore: decode destroy result: %w", err)
	}
	return &res, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.apiKey, c.apiSecret)
		return c.do(req)
	})
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		req, err := retryablehttp.NewRequestWithContext(
			ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return c.do(req)
	})
}

func (c *Client) do(req *retryablehttp.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mediastore: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mediastore: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("mediastore: %s", upstreamMessage(resp.StatusCode, body))
	}
	return body, nil
}

// upstreamMessage extracts the store's structured error message if present,
// falling back to a generic status description.
func upstreamMessage(status int, body []byte) string {
	var se storeError
	if err := json.Unmarshal(body, &se); err == nil && se.Error.Message != "" {
		return se.Error.Message
	}
	return fmt.Sprintf("upstream returned status %d", status)
}
