package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hubspot-deals-connector/internal/model"
)

const (
	// DefaultBaseURL is the production HubSpot API host.
	DefaultBaseURL = "https://api.hubapi.com"

	// MaxPageSize is the hard HubSpot cap on records per page. The client
	// never requests more regardless of what the caller asks for.
	MaxPageSize = 100

	// The deals endpoint allows 150 requests per 10-second window, so the
	// spacing floor between dispatches is 10s/150 ≈ 67ms.
	rateLimitRequests = 150
	rateLimitWindow   = 10 * time.Second
)

// DefaultProperties is the property set requested when the caller supplies
// none.
var DefaultProperties = []string{
	"dealname", "amount", "dealstage", "closedate", "pipeline",
	"dealtype", "hubspot_owner_id", "description", "createdate",
	"hs_lastmodifieddate", "hs_deal_stage_probability",
}

// Deal is one raw record from the deals endpoint. Properties is kept as an
// untyped bag; normalization happens downstream.
type Deal struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	Archived   bool           `json:"archived"`
}

// Page is one page of deals plus the cursor for the next page. An empty
// NextCursor is the only termination signal: an empty Results slice with a
// cursor present means an empty intermediate page, not the end.
type Page struct {
	Results    []Deal
	NextCursor string
}

type pageResponse struct {
	Results []Deal `json:"results"`
	Paging  struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// Options tune the client's pacing and retry behavior. Zero values fall back
// to production defaults.
type Options struct {
	BaseURL        string
	MinInterval    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
}

// Client issues paginated, rate-limited requests against the HubSpot deals
// API for a single bearer token.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	pacer          *Pacer
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            *zap.Logger
}

// NewClient builds a client for the given token. The pacer is supplied by
// the caller so that every job on the same credential shares one throttle.
func NewClient(token string, pacer *Pacer, log *zap.Logger, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		token:          token,
		httpClient:     opts.HTTPClient,
		pacer:          pacer,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		log:            log,
	}
}

// MinInterval returns the spacing floor implied by the HubSpot rate limit.
func MinInterval() time.Duration {
	return rateLimitWindow / rateLimitRequests
}

// FetchPage retrieves one page of deals. cursor is empty for the first page.
// 401/403 fail immediately; 429 and 5xx/network errors are retried with
// backoff up to the configured attempt budget.
func (c *Client) FetchPage(ctx context.Context, cursor string, filters model.ScanFilters, properties []string) (*Page, error) {
	if len(properties) == 0 {
		properties = DefaultProperties
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(MaxPageSize))
	params.Set("archived", strconv.FormatBool(filters.Archived))
	params.Set("properties", strings.Join(properties, ","))
	if cursor != "" {
		params.Set("after", cursor)
	}

	endpoint := c.baseURL + "/crm/v3/objects/deals?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		page, retryAfter, err := c.doFetch(ctx, endpoint)
		if err == nil {
			return page, nil
		}
		switch {
		case isFatal(err):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt == c.maxRetries-1 {
			break
		}
		delay := retryAfter
		if delay <= 0 {
			delay = c.backoff(attempt)
		}
		c.log.Warn("deals page fetch failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// ValidateCredentials issues a single limit=1 probe to verify the token can
// read deals.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}
	endpoint := c.baseURL + "/crm/v3/objects/deals?limit=1"
	_, _, err := c.doFetch(ctx, endpoint)
	return err
}

// doFetch performs one request. The returned duration is a server-provided
// retry delay (from Retry-After) when the response was a 429, zero otherwise.
func (c *Client) doFetch(ctx context.Context, endpoint string) (*Page, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building deals request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hubspot-deals-connector/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", model.ErrTransientAPI, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var decoded pageResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, 0, fmt.Errorf("%w: decoding deals page: %v", model.ErrTransientAPI, err)
		}
		return &Page{Results: decoded.Results, NextCursor: decoded.Paging.Next.After}, 0, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, 0, fmt.Errorf("%w: hubspot returned 401", model.ErrAuthenticationFailed)

	case resp.StatusCode == http.StatusForbidden:
		return nil, 0, fmt.Errorf("%w: hubspot returned 403", model.ErrAuthorizationFailed)

	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		var retryAfter time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, retryAfter, fmt.Errorf("%w: hubspot returned 429", model.ErrRateLimitExceeded)

	default:
		io.Copy(io.Discard, resp.Body)
		return nil, 0, fmt.Errorf("%w: hubspot returned %d", model.ErrTransientAPI, resp.StatusCode)
	}
}

// backoff returns the exponential delay for the given zero-based attempt,
// capped and jittered by up to 10%.
func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.initialBackoff) * math.Pow(2.0, float64(attempt)))
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

// isFatal reports whether the fetch error must not be retried.
func isFatal(err error) bool {
	return errors.Is(err, model.ErrAuthenticationFailed) || errors.Is(err, model.ErrAuthorizationFailed)
}
