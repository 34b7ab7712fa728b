// Package client provides the Unsplash HTTP client with request spacing,
// quota tracking, and a deduplicating image cache.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/unsplash-client/pkg/cache"
	"github.com/Sternrassler/unsplash-client/pkg/pagination"
	"github.com/Sternrassler/unsplash-client/pkg/ratelimit"
)

// Prometheus metrics for Unsplash client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unsplash_requests_total",
		Help: "Total Unsplash requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "unsplash_request_duration_seconds",
		Help:    "Unsplash request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unsplash_errors_total",
		Help: "Total Unsplash errors by class",
	}, []string{"class"})
)

// Endpoint labels.
const (
	endpointSearch = "search"
	endpointImage  = "image"
)

// DefaultBaseURL is the Unsplash API root.
const DefaultBaseURL = "https://api.unsplash.com/"

// searchPhotosPath is resolved against BaseURL.
const searchPhotosPath = "search/photos"

// Response size caps.
const (
	maxSearchBodyBytes = 4 << 20
	minImageBytes      = 1 << 20
)

// DefaultImageHosts returns the Unsplash image CDN hosts.
func DefaultImageHosts() []string {
	return []string{"images.unsplash.com", "plus.unsplash.com"}
}

// Client is the Unsplash API client. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *ratelimit.Limiter
	quota      *ratelimit.Tracker
	images     *cache.Coordinator[string, *Image]
	imageHosts map[string]struct{}
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// AccessKey is the Unsplash application access key (REQUIRED).
	AccessKey string

	// BaseURL of the API (default DefaultBaseURL).
	BaseURL string

	// UserAgent header (REQUIRED).
	UserAgent string

	// MinRequestInterval spaces consecutive outgoing requests.
	MinRequestInterval time.Duration

	// QuotaWindow is how long an exhausted quota blocks requests.
	QuotaWindow time.Duration

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// Image cache ceilings.
	ImageCacheEntries int
	ImageCacheBytes   int64

	// ImageHosts lists the hosts images may be downloaded from
	// (default DefaultImageHosts).
	ImageHosts []string

	// MaxImageBytes caps a single image download
	// (default ImageCacheBytes/16, at least 1 MiB).
	MaxImageBytes int64

	// HTTPClient overrides the transport (optional).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(accessKey, userAgent string) Config {
	return Config{
		AccessKey:          accessKey,
		BaseURL:            DefaultBaseURL,
		UserAgent:          userAgent,
		MinRequestInterval: ratelimit.DefaultMinInterval,
		QuotaWindow:        ratelimit.DefaultResetWindow,
		Timeout:            30 * time.Second,
		ImageCacheEntries:  cache.DefaultMaxEntries,
		ImageCacheBytes:    cache.DefaultMaxCost,
		ImageHosts:         DefaultImageHosts(),
	}
}

// New creates a new Unsplash client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("access key is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	if len(cfg.ImageHosts) == 0 {
		cfg.ImageHosts = DefaultImageHosts()
	}
	hosts := make(map[string]struct{}, len(cfg.ImageHosts))
	for _, h := range cfg.ImageHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}

	if cfg.MaxImageBytes <= 0 {
		cacheBytes := cfg.ImageCacheBytes
		if cacheBytes <= 0 {
			cacheBytes = cache.DefaultMaxCost
		}
		cfg.MaxImageBytes = max(cacheBytes/16, minImageBytes)
	}

	logger := log.With().Str("component", "unsplash-client").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    base,
		limiter:    ratelimit.NewLimiter(cfg.MinRequestInterval),
		quota:      ratelimit.NewTracker(cfg.QuotaWindow, logger),
		imageHosts: hosts,
		config:     cfg,
		logger:     logger,
	}

	c.images = cache.New(c.loadImage, cache.Options[string, *Image]{
		Name:       "images",
		MaxEntries: cfg.ImageCacheEntries,
		MaxCost:    cfg.ImageCacheBytes,
		Cost:       (*Image).Cost,
		Logger:     &logger,
	})

	return c, nil
}

// SearchPhotos requests one page of search results.
func (c *Client) SearchPhotos(ctx context.Context, query string, page, perPage int) (*SearchResponse, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: searchPhotosPath})
	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()

	body, _, err := c.do(ctx, endpointSearch, u.String(), true, maxSearchBodyBytes)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err := &DecodeError{What: "search response", Err: err}
		c.recordError(err)
		return nil, err
	}

	c.logger.Debug().
		Str("query", query).
		Int("page", page).
		Int("results", len(resp.Results)).
		Int("total_pages", resp.TotalPages).
		Msg("Search page received")

	return &resp, nil
}

// FetchPage implements pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, query string, page, perPage int) (pagination.Page[Photo], error) {
	resp, err := c.SearchPhotos(ctx, query, page, perPage)
	if err != nil {
		return pagination.Page[Photo]{}, err
	}
	return pagination.Page[Photo]{
		TotalPages: resp.TotalPages,
		Items:      resp.Results,
	}, nil
}

// FetchImage downloads and validates an image, bypassing the cache.
// Only URLs on Config.ImageHosts are fetched.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (*Image, error) {
	if err := c.checkImageURL(rawURL); err != nil {
		return nil, err
	}

	body, header, err := c.do(ctx, endpointImage, rawURL, false, c.config.MaxImageBytes)
	if err != nil {
		return nil, err
	}

	img, err := decodeImage(rawURL, body, header.Get("Content-Type"))
	if err != nil {
		c.recordError(err)
		return nil, err
	}
	return img, nil
}

// Image returns an image through the cache. Concurrent requests for the
// same URL share one download; failures are not cached.
func (c *Client) Image(ctx context.Context, rawURL string) (*Image, error) {
	if err := c.checkImageURL(rawURL); err != nil {
		return nil, err
	}
	key, err := cache.URLKey(rawURL)
	if err != nil {
		return nil, err
	}
	return c.images.Get(ctx, key)
}

// Images exposes the image cache.
func (c *Client) Images() *cache.Coordinator[string, *Image] {
	return c.images
}

// Quota returns the last server-reported quota.
func (c *Client) Quota() ratelimit.QuotaState {
	return c.quota.State()
}

// Close releases idle connections and drops cached images.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.images.Purge()
	return nil
}

// loadImage runs detached from the caller, so it carries its own deadline
// whatever HTTPClient is configured.
func (c *Client) loadImage(ctx context.Context, key string) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return c.FetchImage(ctx, key)
}

func (c *Client) checkImageURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return &HostNotAllowedError{URL: rawURL}
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := c.imageHosts[host]; !ok {
		return &HostNotAllowedError{URL: rawURL, Host: host}
	}
	return nil
}

// do performs one GET request: quota check, request spacing, headers,
// status validation. It returns the body of a 2xx response, at most limit bytes.
func (c *Client) do(ctx context.Context, endpoint, rawURL string, authorize bool, limit int64) ([]byte, http.Header, error) {
	if !c.quota.ShouldAllowRequest() {
		requestsTotal.WithLabelValues(endpoint, "quota_blocked").Inc()
		c.recordError(ErrQuotaExhausted)
		return nil, nil, ErrQuotaExhausted
	}

	if err := c.limiter.AwaitSlot(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if authorize {
		req.Header.Set("Authorization", "Client-ID "+c.config.AccessKey)
		req.Header.Set("Accept-Version", "v1")
		req.Header.Set("Accept", "application/json")
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", rawURL).
		Msg("Executing Unsplash request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			requestsTotal.WithLabelValues(endpoint, "cancelled").Inc()
			return nil, nil, ctxErr
		}
		terr := &TransportError{URL: rawURL, Err: err}
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.recordError(terr)
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, nil, terr
	}
	defer resp.Body.Close()

	if err := c.quota.UpdateFromHeaders(resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update quota from headers")
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		ierr := NewInvalidResponseError(resp.StatusCode)
		c.recordError(ierr)
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(ierr.Class())).
			Msg("Unsplash request error")
		return nil, nil, ierr
	}

	if resp.ContentLength > limit {
		return nil, nil, c.tooLarge(endpoint, rawURL, limit)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		terr := &TransportError{URL: rawURL, Err: err}
		c.recordError(terr)
		return nil, nil, terr
	}
	if int64(len(body)) > limit {
		return nil, nil, c.tooLarge(endpoint, rawURL, limit)
	}

	return body, resp.Header, nil
}

func (c *Client) tooLarge(endpoint, rawURL string, limit int64) error {
	what := "search response"
	if endpoint == endpointImage {
		what = "image"
	}
	err := &DecodeError{What: what, Err: ErrResponseTooLarge}
	c.recordError(err)
	c.logger.Warn().
		Str("endpoint", endpoint).
		Str("url", rawURL).
		Int64("limit", limit).
		Msg("Response body exceeds size limit")
	return err
}

func (c *Client) recordError(err error) {
	class := Classify(err)
	if class == "" {
		return
	}
	errorsTotal.WithLabelValues(string(class)).Inc()
}
