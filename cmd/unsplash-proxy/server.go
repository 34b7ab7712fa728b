package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/unsplash-client/pkg/client"
	"github.com/Sternrassler/unsplash-client/pkg/favorites"
	"github.com/Sternrassler/unsplash-client/pkg/logging"
	"github.com/Sternrassler/unsplash-client/pkg/metrics"
)

// requestTimeout bounds the upstream work of one proxied request.
const requestTimeout = 30 * time.Second

// server holds the dependencies of the HTTP handlers.
type server struct {
	client    *client.Client
	favorites *favorites.Store
	redis     *redis.Client // nil when favorites are in memory
	perPage   int
	logger    zerolog.Logger
}

func newServer(c *client.Client, fav *favorites.Store, rdb *redis.Client, perPage int) *server {
	return &server{
		client:    c,
		favorites: fav,
		redis:     rdb,
		perPage:   perPage,
		logger:    logging.NewLogger("http"),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.redis))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /search", s.searchHandler)
	mux.HandleFunc("GET /images", s.imageHandler)
	mux.HandleFunc("GET /favorites", s.listFavoritesHandler)
	mux.HandleFunc("POST /favorites", s.toggleFavoriteHandler)
	mux.HandleFunc("DELETE /favorites/{id}", s.removeFavoriteHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready once Redis answers. Without Redis it is always ready.
func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// searchResponse is the body of GET /search.
type searchResponse struct {
	Query      string         `json:"query"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	HasMore    bool           `json:"has_more"`
	Results    []client.Photo `json:"results"`
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, "invalid page parameter", http.StatusBadRequest)
			return
		}
		page = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := s.client.SearchPhotos(ctx, query, page, s.perPage)
	if err != nil {
		s.upstreamError(w, "search", err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:      query,
		Page:       page,
		TotalPages: resp.TotalPages,
		HasMore:    page < resp.TotalPages,
		Results:    resp.Results,
	})
}

func (s *server) imageHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	img, err := s.client.Image(ctx, raw)
	if err != nil {
		var hostErr *client.HostNotAllowedError
		if errors.As(err, &hostErr) || (client.Classify(err) == "" && ctx.Err() == nil) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.upstreamError(w, "image", err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write image")
	}
}

func (s *server) listFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	list := s.favorites.List()
	if list == nil {
		list = []favorites.Author{}
	}
	writeJSON(w, http.StatusOK, list)
}

// toggleFavoriteHandler toggles the posted author and returns its new state.
func (s *server) toggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	var a favorites.Author
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&a); err != nil {
		http.Error(w, "invalid author: "+err.Error(), http.StatusBadRequest)
		return
	}
	if a.ID == "" {
		http.Error(w, "author id is required", http.StatusBadRequest)
		return
	}

	favorite := s.favorites.Toggle(a)
	writeJSON(w, http.StatusOK, map[string]any{"id": a.ID, "favorite": favorite})
}

func (s *server) removeFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	if !s.favorites.Remove(r.PathValue("id")) {
		http.Error(w, "not a favorite", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// upstreamError maps a client error to a proxy status code.
func (s *server) upstreamError(w http.ResponseWriter, endpoint string, err error) {
	status := http.StatusBadGateway
	var invalid *client.InvalidResponseError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, client.ErrQuotaExhausted):
		status = http.StatusTooManyRequests
	case errors.As(err, &invalid) && invalid.StatusCode == http.StatusNotFound:
		status = http.StatusNotFound
	case errors.As(err, &invalid) && invalid.StatusCode == http.StatusTooManyRequests:
		status = http.StatusTooManyRequests
	}

	s.logger.Warn().
		Err(err).
		Str("endpoint", endpoint).
		Str("error_class", string(client.Classify(err))).
		Int("status", status).
		Msg("Upstream request failed")
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
