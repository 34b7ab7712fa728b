// Package favorites keeps the user's favorite photo authors.
//
// The list is append-ordered and keyed by author id. Every change schedules
// a debounced save of the whole list to a Backend, so a burst of toggles
// costs one write. Flush and Close write pending changes synchronously.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Sternrassler/unsplash-client/internal/debounce"
	"github.com/Sternrassler/unsplash-client/pkg/client"
)

// DefaultSaveDelay is the quiet period before pending changes are saved.
const DefaultSaveDelay = 250 * time.Millisecond

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("favorites store closed")

// Prometheus metrics for favorites persistence.
var (
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unsplash_favorites_saves_total",
		Help: "Total favorites saves by outcome",
	}, []string{"outcome"}) // "success", "error"

	favoritesCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unsplash_favorites_authors",
		Help: "Number of favorite authors",
	})
)

// Author is a favorite photo author.
type Author struct {
	ID        string `msgpack:"id" json:"id"`
	Username  string `msgpack:"username" json:"username"`
	Name      string `msgpack:"name" json:"name"`
	UserImage string `msgpack:"user_image,omitempty" json:"user_image,omitempty"`
	URL       string `msgpack:"url,omitempty" json:"url,omitempty"`
}

// FromUser converts a photo's author into a favorite.
func FromUser(u client.PhotoUser) Author {
	a := Author{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		URL:      u.PortfolioURL,
	}
	if u.ProfileImage != nil {
		a.UserImage = u.ProfileImage.Medium
	}
	if u.Links != nil && u.Links.HTML != "" {
		a.URL = u.Links.HTML
	}
	return a
}

// document is the persisted form.
type document struct {
	Version int      `msgpack:"v"`
	Authors []Author `msgpack:"authors"`
}

const documentVersion = 1

// Options configures a Store.
type Options struct {
	// SaveDelay debounces saves (default DefaultSaveDelay).
	SaveDelay time.Duration

	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// Store is the favorites list. Safe for concurrent use.
type Store struct {
	backend   Backend
	debouncer *debounce.Debouncer
	logger    zerolog.Logger

	saveMu sync.Mutex // serializes backend writes

	mu      sync.Mutex
	authors []Author
	index   map[string]int
	version uint64 // bumped on every change
	saved   uint64 // version of the last successful save
	closed  bool
}

// Open loads the stored favorites. An undecodable blob is logged and
// treated as an empty list; a backend error is returned.
func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Store{
		backend:   backend,
		debouncer: debounce.New(opts.SaveDelay),
		logger:    logger.With().Str("component", "favorites").Logger(),
		index:     make(map[string]int),
	}

	data, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	if len(data) > 0 {
		var doc document
		if err := msgpack.Unmarshal(data, &doc); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to decode favorites, starting empty")
		} else {
			for _, a := range doc.Authors {
				if _, dup := s.index[a.ID]; dup || a.ID == "" {
					continue
				}
				s.index[a.ID] = len(s.authors)
				s.authors = append(s.authors, a)
			}
		}
	}
	favoritesCount.Set(float64(len(s.authors)))

	s.logger.Debug().Int("authors", len(s.authors)).Msg("Favorites loaded")
	return s, nil
}

// Toggle adds a if absent, otherwise removes it. It reports whether a is a
// favorite afterwards.
func (s *Store) Toggle(a Author) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[a.ID]; ok {
		s.removeLocked(a.ID)
		return false
	}
	s.addLocked(a)
	return true
}

// Add appends a unless it is already present. It reports whether the list changed.
func (s *Store) Add(a Author) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[a.ID]; ok {
		return false
	}
	s.addLocked(a)
	return true
}

// Remove deletes the author with id. It reports whether the list changed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

// IsFavorite reports whether id is in the list.
func (s *Store) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// List returns the favorites in insertion order.
func (s *Store) List() []Author {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Author(nil), s.authors...)
}

// Len returns the number of favorites.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.authors)
}

// Flush cancels the pending debounced save and writes unsaved changes now.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.debouncer.Cancel()
	return s.save(ctx)
}

// Close flushes pending changes. Later mutations are kept in memory only.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Cancel()
	return s.save(ctx)
}

func (s *Store) addLocked(a Author) {
	s.index[a.ID] = len(s.authors)
	s.authors = append(s.authors, a)
	s.changedLocked()
}

func (s *Store) removeLocked(id string) {
	i := s.index[id]
	s.authors = append(s.authors[:i], s.authors[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.authors); j++ {
		s.index[s.authors[j].ID] = j
	}
	s.changedLocked()
}

func (s *Store) changedLocked() {
	s.version++
	favoritesCount.Set(float64(len(s.authors)))
	if s.closed {
		return
	}
	s.debouncer.Trigger(func() {
		if err := s.save(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Debounced favorites save failed")
		}
	})
}

// save writes the current list if it changed since the last successful save.
func (s *Store) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.version == s.saved {
		s.mu.Unlock()
		return nil
	}
	version := s.version
	doc := document{Version: documentVersion, Authors: append([]Author(nil), s.authors...)}
	s.mu.Unlock()

	data, err := msgpack.Marshal(doc)
	if err != nil {
		savesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("encode favorites: %w", err)
	}

	if err := s.backend.Save(ctx, data); err != nil {
		savesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("save favorites: %w", err)
	}
	savesTotal.WithLabelValues("success").Inc()

	s.mu.Lock()
	if version > s.saved {
		s.saved = version
	}
	s.mu.Unlock()

	s.logger.Debug().
		Int("authors", len(doc.Authors)).
		Int("bytes", len(data)).
		Msg("Favorites saved")
	return nil
}
