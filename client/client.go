package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"

	"github.com/scambus/scambus-go"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "scambus-go-client/1.0.0"
	rebuildRetryHint = 10 * time.Second
)

var tracer = otel.Tracer("scambus.client")

// Config carries the connection settings for a Client. Either
// APIKeyID/APIKeySecret or APIToken must be set; the rest is optional.
type Config struct {
	// APIURL is the base URL of the Scambus API, e.g. "https://scambus.net/api".
	APIURL string

	// API key credentials, sent as "X-API-Key: <id>:<secret>".
	APIKeyID     string
	APIKeySecret string

	// APIToken is a bearer token alternative to the API key pair.
	APIToken string

	// Timeout applies per request. It does not apply to the long-lived
	// SSE connection, which lives until closed or the context ends.
	Timeout time.Duration

	UserAgent string
	Logger    *slog.Logger
}

// Client talks to the Scambus consumption API: polling, stream info,
// SSE streaming, and recovery/backfill coordination. Construct one
// Client per credential set; it is safe for concurrent use.
type Client struct {
	client    *http.Client
	streaming *http.Client
	cache     *cache.Cache
	logger    *slog.Logger

	baseURL   string
	keyID     string
	keySecret string
	token     string
	userAgent string
}

func New(conf Config) (*Client, error) {
	if conf.APIURL == "" {
		return nil, scambus.ValidationError{APIError: scambus.APIError{Message: "api url is required"}}
	}
	if (conf.APIKeyID == "" || conf.APIKeySecret == "") && conf.APIToken == "" {
		return nil, scambus.ValidationError{APIError: scambus.APIError{
			Message: "either api key id/secret or api token must be provided",
		}}
	}

	timeout := conf.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	userAgent := conf.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := conf.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cache:     cache.New(10*time.Minute, 15*time.Minute),
		logger:    logger,
		baseURL:   strings.TrimRight(conf.APIURL, "/"),
		keyID:     conf.APIKeyID,
		keySecret: conf.APIKeySecret,
		token:     conf.APIToken,
		userAgent: userAgent,
	}
	c.client = &http.Client{Timeout: timeout, Transport: c}
	c.streaming = &http.Client{Transport: c}
	return c, nil
}

// RoundTrip injects authentication and User-Agent headers on every
// outgoing request.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.keyID != "" {
		req.Header.Set("X-API-Key", c.keyID+":"+c.keySecret)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return http.DefaultTransport.RoundTrip(req)
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, response any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if resp.StatusCode == http.StatusNoContent || response == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

// decodeAPIError maps an error response to the typed taxonomy. The body
// is expected to be {"error": "..."} and, for cursor errors, may carry
// the earliest valid cursor to recover to.
func decodeAPIError(resp *http.Response) error {
	var data map[string]any
	body, readErr := io.ReadAll(resp.Body)
	if readErr == nil && len(body) > 0 {
		_ = json.Unmarshal(body, &data)
	}

	message := ""
	if m, ok := data["error"].(string); ok {
		message = m
	} else if len(body) > 0 {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	base := scambus.APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Response:   data,
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return scambus.AuthenticationError{APIError: base}
	case http.StatusBadRequest:
		return scambus.ValidationError{APIError: base}
	case http.StatusNotFound:
		return scambus.NotFoundError{APIError: base}
	case http.StatusGone, http.StatusRequestedRangeNotSatisfiable:
		earliest := ""
		if e, ok := data["earliest_cursor"].(string); ok {
			earliest = e
		} else if e, ok := data["earliestCursor"].(string); ok {
			earliest = e
		}
		return scambus.CursorOutOfRangeError{APIError: base, EarliestCursor: earliest}
	case http.StatusTooManyRequests:
		return scambus.RateLimitedError{APIError: base}
	case http.StatusServiceUnavailable:
		retryAfter := rebuildRetryHint
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if d, err := time.ParseDuration(ra + "s"); err == nil {
				retryAfter = d
			}
		}
		return scambus.StreamRebuildingError{APIError: base, RetryAfter: retryAfter}
	}
	if resp.StatusCode >= 500 {
		return scambus.ServerError{APIError: base}
	}
	return base
}

// GetStreamInfo fetches retention and cursor metadata for a stream,
// used to choose a starting cursor. Responses are cached briefly since
// consumers tend to re-check info between poll batches.
func (c *Client) GetStreamInfo(ctx context.Context, consumerKey string) (scambus.StreamInfo, error) {
	ctx, span := tracer.Start(ctx, "Client.GetStreamInfo")
	defer span.End()

	cacheKey := "info:" + consumerKey
	if x, found := c.cache.Get(cacheKey); found {
		return x.(scambus.StreamInfo), nil
	}

	var info scambus.StreamInfo
	err := c.request(ctx, http.MethodGet, "/consume/"+consumerKey+"/info", nil, &info)
	if err != nil {
		span.RecordError(err)
		return scambus.StreamInfo{}, err
	}

	c.cache.Set(cacheKey, info, cache.DefaultExpiration)
	return info, nil
}
