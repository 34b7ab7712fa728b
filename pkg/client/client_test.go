package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/unsplash-client/internal/testutil"
	"github.com/Sternrassler/unsplash-client/pkg/pagination"
)

var _ pagination.PageFetcher[Photo] = (*Client)(nil)

const testUserAgent = "UnsplashClientTest/1.0.0 (test@example.com)"

// newTestClient creates a client against the mock with a short request spacing.
// The mock host is allowed as an image host.
func newTestClient(t *testing.T, mock *testutil.MockUnsplash, modify ...func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig("test-access-key", testUserAgent)
	cfg.BaseURL = mock.URL()
	cfg.MinRequestInterval = time.Millisecond
	cfg.Timeout = 5 * time.Second
	cfg.ImageHosts = append(cfg.ImageHosts, mockHost(t, mock))
	for _, m := range modify {
		m(&cfg)
	}

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func mockHost(t *testing.T, mock *testutil.MockUnsplash) string {
	t.Helper()
	u, err := url.Parse(mock.URL())
	require.NoError(t, err)
	return u.Hostname()
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("key", "TestApp/1.0.0"),
		},
		{
			name:   "empty base url uses default",
			config: Config{AccessKey: "key", UserAgent: "TestApp/1.0.0"},
		},
		{
			name:        "empty access key",
			config:      DefaultConfig("", "TestApp/1.0.0"),
			expectError: true,
			errorMsg:    "access key is required",
		},
		{
			name:        "empty user agent",
			config:      DefaultConfig("key", ""),
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "relative base url",
			config:      Config{AccessKey: "key", UserAgent: "TestApp/1.0.0", BaseURL: "api/v1"},
			expectError: true,
			errorMsg:    `invalid base url "api/v1/"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("key", "TestApp/1.0.0")

	assert.Equal(t, "key", cfg.AccessKey)
	assert.Equal(t, "TestApp/1.0.0", cfg.UserAgent)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 100*time.Millisecond, cfg.MinRequestInterval)
	assert.Equal(t, 1000, cfg.ImageCacheEntries)
	assert.Equal(t, int64(640*1024*1024), cfg.ImageCacheBytes)
	assert.Equal(t, []string{"images.unsplash.com", "plus.unsplash.com"}, cfg.ImageHosts)

	c, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(40*1024*1024), c.config.MaxImageBytes)
}

func TestSearchPhotos_RequestAndDecode(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetSearchPage("mountains", 2, testutil.SearchPage{IDs: []string{"a1", "b2"}, TotalPages: 7})

	c := newTestClient(t, mock)

	resp, err := c.SearchPhotos(context.Background(), "mountains", 2, 30)
	require.NoError(t, err)

	assert.Equal(t, 7, resp.TotalPages)
	require.Len(t, resp.Results, 2)
	p := resp.Results[0]
	assert.Equal(t, "a1", p.ID)
	assert.Equal(t, "a1", p.Key())
	assert.Equal(t, 4000, p.Width)
	assert.Equal(t, "author_a1", p.User.Username)
	assert.Equal(t, "https://images.unsplash.com/photo-a1?w=200", p.URLs.Thumb)
	require.NotNil(t, p.User.ProfileImage)
	require.NotNil(t, p.User.Links)
	assert.Equal(t, "https://unsplash.com/@author_a1", p.User.Links.HTML)

	h := mock.LastRequestHeader()
	assert.Equal(t, "Client-ID test-access-key", h.Get("Authorization"))
	assert.Equal(t, "v1", h.Get("Accept-Version"))
	assert.Equal(t, testUserAgent, h.Get("User-Agent"))
}

func TestSearchPhotos_QueryParameters(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()

	var got map[string]string
	mock.SetHandler("/search/photos", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"query":    q.Get("query"),
			"page":     q.Get("page"),
			"per_page": q.Get("per_page"),
		}
		w.Write(testutil.SearchBody(0))
	})

	c := newTestClient(t, mock)
	_, err := c.SearchPhotos(context.Background(), "red & blue", 3, 15)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"query": "red & blue", "page": "3", "per_page": "15"}, got)
}

func TestSearchPhotos_StatusErrors(t *testing.T) {
	tests := []struct {
		status  int
		message string
		class   ErrorClass
	}{
		{400, "Bad Request: The request was unacceptable, often due to missing a required parameter", ErrorClassClient},
		{401, "Unauthorized: Invalid Access Token", ErrorClassClient},
		{403, "Forbidden: Missing permissions to perform request", ErrorClassClient},
		{404, "Not Found: The requested resource doesn't exist", ErrorClassClient},
		{429, "Rate Limit Exceeded: Too many requests", ErrorClassRateLimit},
		{500, "Server Error: Something went wrong on our end", ErrorClassServer},
		{503, "Server Error: Something went wrong on our end", ErrorClassServer},
		{418, "HTTP Error: Received status code 418", ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			mock := testutil.NewMockUnsplash()
			defer mock.Close()
			mock.SetResponse("/search/photos", testutil.NewErrorResponse(tt.status))

			c := newTestClient(t, mock)
			_, err := c.SearchPhotos(context.Background(), "cats", 1, 30)

			var invalid *InvalidResponseError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.status, invalid.StatusCode)
			assert.Equal(t, tt.message, err.Error())
			assert.Equal(t, tt.class, Classify(err))
		})
	}
}

func TestSearchPhotos_DecodeError(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetResponse("/search/photos", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"total": "many"`),
	})

	c := newTestClient(t, mock)
	_, err := c.SearchPhotos(context.Background(), "cats", 1, 30)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "search response", decodeErr.What)
	assert.Equal(t, ErrorClassDecode, Classify(err))
}

func TestSearchPhotos_TransportError(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	c := newTestClient(t, mock)
	mock.Close()

	_, err := c.SearchPhotos(context.Background(), "cats", 1, 30)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, ErrorClassNetwork, Classify(err))
}

func TestSearchPhotos_Cancelled(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetResponse("/search/photos", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.SearchBody(1, "a"),
		Delay:      2 * time.Second,
	})

	c := newTestClient(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.SearchPhotos(ctx, "cats", 1, 30)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ErrorClass(""), Classify(err))
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetSearchPage("cats", 1, testutil.SearchPage{IDs: []string{"x", "y", "z"}, TotalPages: 4})

	c := newTestClient(t, mock)
	page, err := c.FetchPage(context.Background(), "cats", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 4, page.TotalPages)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "z", page.Items[2].ID)
}

func TestQuotaExhausted_BlocksWithoutRequest(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetQuota(50, 0)

	c := newTestClient(t, mock)

	// The first response reports the exhausted quota.
	_, err := c.SearchPhotos(context.Background(), "cats", 1, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Quota().Remaining)
	assert.Equal(t, 50, c.Quota().Limit)

	_, err = c.SearchPhotos(context.Background(), "cats", 1, 30)
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Equal(t, ErrorClassRateLimit, Classify(err))
	assert.Equal(t, 1, mock.RequestCount())
}

func TestRequestSpacing(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.MinRequestInterval = 40 * time.Millisecond
	})

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.SearchPhotos(context.Background(), "cats", 1, 30)
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestFetchImage(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetResponse("/photo-1", testutil.NewImageResponse(8, 6))

	c := newTestClient(t, mock)
	img, err := c.FetchImage(context.Background(), mock.URL()+"/photo-1")
	require.NoError(t, err)

	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 6, img.Height)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, int64(len(img.Data)), img.Cost())

	h := mock.LastRequestHeader()
	assert.Empty(t, h.Get("Authorization"), "image CDN requests carry no credentials")
	assert.Equal(t, testUserAgent, h.Get("User-Agent"))
}

func TestImage_ConcurrentRequestsShareDownload(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()

	resp := testutil.NewImageResponse(4, 4)
	resp.Delay = 100 * time.Millisecond
	mock.SetResponse("/photo-shared", resp)

	c := newTestClient(t, mock)
	url := mock.URL() + "/photo-shared?w=400&q=80"

	const callers = 20
	var wg sync.WaitGroup
	results := make([]*Image, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Image(context.Background(), url)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, mock.PathCount("/photo-shared"))

	// Parameter order does not matter for the cache key.
	img, err := c.Image(context.Background(), mock.URL()+"/photo-shared?q=80&w=400")
	require.NoError(t, err)
	assert.Same(t, results[0], img)
	assert.Equal(t, 1, mock.PathCount("/photo-shared"))
	assert.Equal(t, 1, c.Images().Len())
}

func TestImage_FailuresNotCached(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetResponse("/broken", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte("definitely not an image"),
	})
	mock.SetResponse("/missing", testutil.NewErrorResponse(http.StatusNotFound))

	c := newTestClient(t, mock)

	for i := 0; i < 2; i++ {
		_, err := c.Image(context.Background(), mock.URL()+"/broken")
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, "image", decodeErr.What)

		_, err = c.Image(context.Background(), mock.URL()+"/missing")
		var invalid *InvalidResponseError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, http.StatusNotFound, invalid.StatusCode)
	}

	assert.Equal(t, 2, mock.PathCount("/broken"))
	assert.Equal(t, 2, mock.PathCount("/missing"))
	assert.Zero(t, c.Images().Len())
}

func TestImage_InvalidURL(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()

	c := newTestClient(t, mock)
	_, err := c.Image(context.Background(), "/relative/path.png")
	require.Error(t, err)
	assert.Zero(t, mock.RequestCount())
}

func TestImage_CostCeiling(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	for _, p := range []string{"/a", "/b", "/c"} {
		mock.SetResponse(p, testutil.NewImageResponse(16, 16))
	}

	size := int64(len(testutil.PNG(16, 16)))
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.ImageCacheBytes = 2 * size
	})

	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := c.Image(context.Background(), mock.URL()+p)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Images().Len())
	assert.LessOrEqual(t, c.Images().Cost(), 2*size)
}

func TestClose_PurgesImages(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetResponse("/a", testutil.NewImageResponse(2, 2))

	c := newTestClient(t, mock)
	_, err := c.Image(context.Background(), mock.URL()+"/a")
	require.NoError(t, err)
	require.Equal(t, 1, c.Images().Len())

	require.NoError(t, c.Close())
	assert.Zero(t, c.Images().Len())
}

func TestClassify_UnknownError(t *testing.T) {
	assert.Equal(t, ErrorClass(""), Classify(nil))
	assert.Equal(t, ErrorClass(""), Classify(errors.New("other")))
}

func TestImage_DisallowedHost(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetResponse("/photo-1", testutil.NewImageResponse(2, 2))

	u, err := url.Parse(mock.URL())
	require.NoError(t, err)

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.ImageHosts = []string{"images.unsplash.com"}
	})

	tests := []struct {
		name string
		url  string
		host string
	}{
		{"loopback", mock.URL() + "/photo-1", u.Hostname()},
		{"localhost alias", "http://localhost:" + u.Port() + "/photo-1", "localhost"},
		{"metadata address", "http://169.254.169.254/latest/meta-data", "169.254.169.254"},
		{"lookalike host", "https://images.unsplash.com.evil.test/a.jpg", "images.unsplash.com.evil.test"},
		{"unsupported scheme", "ftp://images.unsplash.com/a.jpg", ""},
		{"relative url", "/photo-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, fetch := range []func(context.Context, string) (*Image, error){c.Image, c.FetchImage} {
				_, err := fetch(context.Background(), tt.url)
				var hostErr *HostNotAllowedError
				require.ErrorAs(t, err, &hostErr)
				assert.Equal(t, tt.host, hostErr.Host)
				assert.Equal(t, ErrorClass(""), Classify(err))
			}
		})
	}

	assert.Zero(t, mock.RequestCount())
	assert.Zero(t, c.Images().Len())
}

func TestImage_HostMatchIgnoresCase(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()
	mock.SetResponse("/photo-1", testutil.NewImageResponse(2, 2))

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.ImageHosts = []string{"LOCALHOST"}
	})

	u, err := url.Parse(mock.URL())
	require.NoError(t, err)

	_, err = c.Image(context.Background(), "http://LocalHost:"+u.Port()+"/photo-1")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.PathCount("/photo-1"))
}

func TestImage_BodySizeLimit(t *testing.T) {
	png := testutil.PNG(32, 32)
	size := int64(len(png))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		limit   int64
		tooBig  bool
	}{
		{
			name: "declared length over limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write(png)
			},
			limit:  size - 1,
			tooBig: true,
		},
		{
			name: "declared length at limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write(png)
			},
			limit: size,
		},
		{
			name: "streamed body over limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				chunk := make([]byte, 4096)
				for i := 0; i < 256; i++ {
					if _, err := w.Write(chunk); err != nil {
						return
					}
					w.(http.Flusher).Flush()
				}
			},
			limit:  8192,
			tooBig: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockUnsplash()
			defer mock.Close()
			mock.SetHandler("/big", tt.handler)

			c := newTestClient(t, mock, func(cfg *Config) {
				cfg.MaxImageBytes = tt.limit
			})

			img, err := c.Image(context.Background(), mock.URL()+"/big")
			if !tt.tooBig {
				require.NoError(t, err)
				assert.Equal(t, size, img.Cost())
				return
			}

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, "image", decodeErr.What)
			assert.ErrorIs(t, err, ErrResponseTooLarge)
			assert.Equal(t, ErrorClassDecode, Classify(err))
			assert.Zero(t, c.Images().Len())
		})
	}
}

func TestImage_TimeoutAppliesWithCustomHTTPClient(t *testing.T) {
	mock := testutil.NewMockUnsplash()
	defer mock.Close()

	hung := testutil.NewImageResponse(2, 2)
	hung.Delay = 10 * time.Second
	mock.SetResponse("/hung", hung)

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{}
		cfg.Timeout = 100 * time.Millisecond
	})

	start := time.Now()
	_, err := c.Image(context.Background(), mock.URL()+"/hung")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The key is released; a later request starts a fresh load.
	assert.Zero(t, c.Images().Stats().InFlight)
	mock.SetResponse("/hung", testutil.NewImageResponse(2, 2))
	_, err = c.Image(context.Background(), mock.URL()+"/hung")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.PathCount("/hung"))
}
