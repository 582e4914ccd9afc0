// Package places acquires rows from the external place-search API and
// normalizes them into the flat tabular shape the extract engine consumes.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

// minPageDelay is the floor on the wait between paged requests. The upstream
// API rejects a continuation token that is used too soon, so the delay is a
// hard external constraint, not a tunable.
const minPageDelay = 2 * time.Second

// Place is one search result as returned by the API. Optional fields are
// pointers so that absent values can be defaulted during normalization.
type Place struct {
	PlaceID           string   `json:"place_id"`
	Name              string   `json:"name"`
	FormattedAddress  string   `json:"formatted_address"`
	BusinessStatus    string   `json:"business_status"`
	Icon              string   `json:"icon"`
	Rating            *float64 `json:"rating"`
	UserRatingsTotal  *int64   `json:"user_ratings_total"`
	PriceLevel        *float64 `json:"price_level"`
	PermanentlyClosed *bool    `json:"permanently_closed"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	OpeningHours *struct {
		OpenNow *bool `json:"open_now"`
	} `json:"opening_hours"`

	// Carried in the payload but dropped during normalization.
	Types  []string          `json:"types"`
	Photos []json.RawMessage `json:"photos"`
}

type searchResponse struct {
	Results       []Place `json:"results"`
	NextPageToken string  `json:"next_page_token"`
	Status        string  `json:"status"`
	ErrorMessage  string  `json:"error_message"`
}

// Client issues paginated search requests against the place-search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	pageDelay  time.Duration
	sleep      func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPageDelay sets the wait between paged requests. Values below the
// mandated floor are raised to it.
func WithPageDelay(d time.Duration) Option {
	return func(c *Client) {
		if d < minPageDelay {
			d = minPageDelay
		}
		c.pageDelay = d
	}
}

// withSleep replaces the delay function, for tests.
func withSleep(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a search client.
func NewClient(apiKey string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		pageDelay:  minPageDelay,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll issues the initial search request and follows the continuation
// token until exhaustion, accumulating the pages in order. Between paged
// requests it waits the mandated delay. Zero results is not an error.
func (c *Client) FetchAll(ctx context.Context, queryText string) ([]Place, error) {
	var all []Place

	page, err := c.search(ctx, queryText, "")
	if err != nil {
		return nil, err
	}
	all = append(all, page.Results...)
	pages := 1

	for page.NextPageToken != "" {
		c.sleep(c.pageDelay)
		page, err = c.search(ctx, queryText, page.NextPageToken)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", pages+1, err)
		}
		all = append(all, page.Results...)
		pages++
	}

	c.logger.Info("search completed",
		zap.String("query", queryText),
		zap.Int("pages", pages),
		zap.Int("records", len(all)))
	return all, nil
}

func (c *Client) search(ctx context.Context, queryText, pageToken string) (*searchResponse, error) {
	params := url.Values{}
	params.Set("query", queryText)
	params.Set("key", c.apiKey)
	if pageToken != "" {
		params.Set("pagetoken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	switch body.Status {
	case "OK", "ZERO_RESULTS", "":
	default:
		return nil, fmt.Errorf("search returned status %s: %s", body.Status, body.ErrorMessage)
	}

	return &body, nil
}
