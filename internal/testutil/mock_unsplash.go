// Package testutil provides testing utilities for the Unsplash client.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

// SearchPage is one scripted page of a search query.
type SearchPage struct {
	IDs        []string
	TotalPages int
}

// MockUnsplash is a configurable mock Unsplash server for testing.
// It serves /search/photos from scripted pages and arbitrary other paths
// from SetResponse or SetHandler.
type MockUnsplash struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	searches map[string]map[int]SearchPage
	quota    *[2]int // limit, remaining

	// Tracking
	requestCount      int
	pathCounts        map[string]int
	lastRequestHeader http.Header
}

// NewMockUnsplash creates a new mock Unsplash server.
func NewMockUnsplash() *MockUnsplash {
	mock := &MockUnsplash{
		handlers:   make(map[string]http.HandlerFunc),
		searches:   make(map[string]map[int]SearchPage),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		quota := mock.quota
		mock.mu.Unlock()

		if quota != nil {
			w.Header().Set("X-Ratelimit-Limit", strconv.Itoa(quota[0]))
			w.Header().Set("X-Ratelimit-Remaining", strconv.Itoa(quota[1]))
		}

		if exists {
			handler(w, r)
			return
		}

		if r.URL.Path == "/search/photos" {
			mock.searchHandler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUnsplash) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUnsplash) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUnsplash) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUnsplash) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUnsplash) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if len(resp.Body) > 0 {
			w.Write(resp.Body)
		}
	})
}

// SetSearchPage scripts the response for one page of a query.
func (m *MockUnsplash) SetSearchPage(query string, page int, sp SearchPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages, ok := m.searches[query]
	if !ok {
		pages = make(map[int]SearchPage)
		m.searches[query] = pages
	}
	pages[page] = sp
}

// SetQuota makes every response carry the given quota headers.
func (m *MockUnsplash) SetQuota(limit, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota = &[2]int{limit, remaining}
}

// RequestCount returns the number of requests made to the server.
func (m *MockUnsplash) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockUnsplash) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockUnsplash) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// searchHandler serves scripted pages. Unscripted queries return no results.
func (m *MockUnsplash) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	sp, ok := m.searches[query][page]
	m.mu.RUnlock()
	if !ok {
		sp = SearchPage{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(SearchBody(sp.TotalPages, sp.IDs...))
}

// SearchBody renders a search response body in the Unsplash schema.
func SearchBody(totalPages int, ids ...string) []byte {
	results := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		results = append(results, photoJSON(id))
	}
	body, _ := json.Marshal(map[string]any{
		"total":       len(ids) * max(totalPages, 1),
		"total_pages": totalPages,
		"results":     results,
	})
	return body
}

func photoJSON(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"created_at":  "2024-05-01T10:00:00Z",
		"width":       4000,
		"height":      3000,
		"color":       "#0c2626",
		"blur_hash":   "LFC$yHwc8^$yIAS$%M%00KxukYIp",
		"likes":       42,
		"description": "photo " + id,
		"urls": map[string]string{
			"raw":     "https://images.unsplash.com/photo-" + id,
			"full":    "https://images.unsplash.com/photo-" + id + "?q=85",
			"regular": "https://images.unsplash.com/photo-" + id + "?w=1080",
			"small":   "https://images.unsplash.com/photo-" + id + "?w=400",
			"thumb":   "https://images.unsplash.com/photo-" + id + "?w=200",
		},
		"user": map[string]any{
			"id":       "user-" + id,
			"username": "author_" + id,
			"name":     "Author " + id,
			"profile_image": map[string]string{
				"small":  "https://images.unsplash.com/profile-" + id + "?w=32",
				"medium": "https://images.unsplash.com/profile-" + id + "?w=64",
				"large":  "https://images.unsplash.com/profile-" + id + "?w=128",
			},
			"links": map[string]string{
				"html": "https://unsplash.com/@author_" + id,
			},
		},
	}
}

// PNG encodes a solid w x h image.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("encode png: %v", err))
	}
	return buf.Bytes()
}

// NewImageResponse creates a 200 OK PNG response.
func NewImageResponse(w, h int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       PNG(w, h),
		Headers:    map[string]string{"Content-Type": "image/png"},
	}
}

// NewErrorResponse creates an error response with a JSON error body.
func NewErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       []byte(fmt.Sprintf(`{"errors":["%s"]}`, http.StatusText(status))),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
