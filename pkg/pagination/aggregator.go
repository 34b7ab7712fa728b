package pagination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/unsplash-client/internal/debounce"
)

// Prometheus metrics for page aggregation.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unsplash_pagination_pages_total",
		Help: "Total page fetches by outcome",
	}, []string{"outcome"}) // "success", "error", "cancelled", "stale"

	pageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "unsplash_pagination_page_duration_seconds",
		Help:    "Page fetch duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unsplash_pagination_duplicates_total",
		Help: "Total items dropped because their id was already in the session",
	})
)

// session is one query's accumulated state.
type session[T Keyed] struct {
	id      string
	query   string
	page    int // last page requested; rolled back when that request fails
	hasMore bool
	seen    map[string]struct{}
	items   []T
}

// Aggregator sequences page fetches for one search query at a time.
// All methods are safe for concurrent use.
type Aggregator[T Keyed] struct {
	fetcher   PageFetcher[T]
	config    Config
	logger    zerolog.Logger
	debouncer *debounce.Debouncer

	baseCtx context.Context
	stop    context.CancelFunc

	// ---- guarded by mu ----
	mu          sync.Mutex
	requestSeq  uint64 // bumped by every SetQuery
	gen         uint64 // bumped whenever the current session is superseded
	session     *session[T]
	phase       Phase
	message     string
	loading     bool
	cancelFetch context.CancelFunc
	closed      bool
	updates     chan struct{}
}

// New creates an aggregator. Zero config fields take DefaultConfig values.
func New[T Keyed](fetcher PageFetcher[T], cfg Config) *Aggregator[T] {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = def.PerPage
	}

	ctx, stop := context.WithCancel(context.Background())

	return &Aggregator[T]{
		fetcher:   fetcher,
		config:    cfg,
		logger:    log.With().Str("component", "pagination").Logger(),
		debouncer: debounce.New(cfg.Debounce),
		baseCtx:   ctx,
		stop:      stop,
		phase:     PhaseIdle,
		updates:   make(chan struct{}, 1),
	}
}

// Updates returns a channel that receives a signal after state changes.
// Signals are coalesced; read State for the current values. The channel
// is closed by Close.
func (a *Aggregator[T]) Updates() <-chan struct{} {
	return a.updates
}

// State returns a snapshot of the current search state.
func (a *Aggregator[T]) State() State[T] {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := State[T]{
		Phase:     a.phase,
		Message:   a.message,
		IsLoading: a.loading,
	}
	if s := a.session; s != nil {
		st.Query = s.query
		st.Page = s.page
		st.HasMore = s.hasMore
		st.Items = append([]T(nil), s.items...)
	}
	return st
}

// SetQuery changes the search query. An empty query clears the results
// immediately. Any other query is applied once no further SetQuery call
// has arrived for the debounce window.
func (a *Aggregator[T]) SetQuery(q string) {
	q = strings.TrimSpace(q)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.requestSeq++
	seq := a.requestSeq

	if q == "" {
		a.debouncer.Cancel()
		a.supersedeLocked()
		a.session = nil
		a.phase = PhaseIdle
		a.message = ""
		a.notifyLocked()
		a.logger.Debug().Msg("Query cleared")
		return
	}

	// Armed under mu so the debouncer always holds the latest request.
	a.debouncer.Trigger(func() {
		a.startSession(q, seq)
	})
}

// LoadMore fetches the next page of the current session and blocks until
// it resolves. It is a no-op (nil error) when there is no session, a fetch
// is already outstanding, or the server reported no further pages.
// ErrSuperseded is returned if the query changed while the page was in
// flight.
func (a *Aggregator[T]) LoadMore(ctx context.Context) error {
	a.mu.Lock()
	s := a.session
	if a.closed || s == nil || a.loading || !s.hasMore {
		a.mu.Unlock()
		return nil
	}

	prev := a.phase
	s.page++
	page := s.page
	gen := a.gen

	a.loading = true
	if page == 1 {
		a.phase = PhaseSearching
	} else {
		a.phase = PhaseLoadingMore
	}
	if prev == PhaseError {
		a.message = ""
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(a.baseCtx, cancel)
	defer stopAfter()
	a.cancelFetch = cancel
	a.notifyLocked()
	a.mu.Unlock()

	a.logger.Debug().
		Str("session", s.id).
		Str("query", s.query).
		Int("page", page).
		Msg("Loading next page")

	return a.fetch(fetchCtx, cancel, gen, s, page, prev)
}

// Close cancels pending work. Results still in flight are discarded.
func (a *Aggregator[T]) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.debouncer.Cancel()
	a.supersedeLocked()
	close(a.updates)
	a.mu.Unlock()

	a.stop()
}

// startSession replaces the current session once the debounce settles.
func (a *Aggregator[T]) startSession(q string, seq uint64) {
	a.mu.Lock()
	if a.closed || seq != a.requestSeq {
		a.mu.Unlock()
		return
	}

	a.supersedeLocked()
	s := &session[T]{
		id:      uuid.NewString(),
		query:   q,
		page:    1,
		hasMore: true,
		seen:    make(map[string]struct{}),
	}
	a.session = s
	a.phase = PhaseSearching
	a.loading = true
	a.message = fmt.Sprintf("Searching for %q...", q)
	gen := a.gen

	ctx, cancel := context.WithCancel(a.baseCtx)
	a.cancelFetch = cancel
	a.notifyLocked()
	a.mu.Unlock()

	a.logger.Info().
		Str("session", s.id).
		Str("query", q).
		Msg("Starting search session")

	_ = a.fetch(ctx, cancel, gen, s, 1, PhaseIdle)
}

// fetch runs one page request and applies the result if gen is still current.
func (a *Aggregator[T]) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64, s *session[T], page int, prev Phase) error {
	start := time.Now()
	res, err := a.fetcher.FetchPage(ctx, s.query, page, a.config.PerPage)
	ctxErr := ctx.Err()
	cancel()
	pageDuration.Observe(time.Since(start).Seconds())

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen {
		pagesTotal.WithLabelValues("stale").Inc()
		a.logger.Debug().
			Str("session", s.id).
			Str("query", s.query).
			Int("page", page).
			Msg("Discarding result of superseded session")
		return ErrSuperseded
	}

	a.loading = false
	a.cancelFetch = nil

	if err != nil {
		s.page = page - 1

		if ctxErr != nil {
			// The caller gave up; not a search failure.
			pagesTotal.WithLabelValues("cancelled").Inc()
			a.phase = prev
			a.notifyLocked()
			return err
		}

		pagesTotal.WithLabelValues("error").Inc()
		a.phase = PhaseError
		a.message = err.Error()
		a.notifyLocked()
		a.logger.Warn().
			Err(err).
			Str("session", s.id).
			Str("query", s.query).
			Int("page", page).
			Msg("Page fetch failed")
		return err
	}

	added, dropped := 0, 0
	for _, item := range res.Items {
		key := item.Key()
		if _, ok := s.seen[key]; ok {
			dropped++
			continue
		}
		s.seen[key] = struct{}{}
		s.items = append(s.items, item)
		added++
	}
	if dropped > 0 {
		duplicatesTotal.Add(float64(dropped))
	}

	s.page = page
	s.hasMore = page < res.TotalPages
	pagesTotal.WithLabelValues("success").Inc()

	switch {
	case page == 1 && len(s.items) == 0 && !s.hasMore:
		a.phase = PhaseExhausted
		a.message = fmt.Sprintf("No photos found for %q", s.query)
	case page == 1 || s.hasMore:
		a.phase = PhaseReady
		a.message = ""
	default:
		a.phase = PhaseExhausted
		a.message = ""
	}
	a.notifyLocked()

	a.logger.Debug().
		Str("session", s.id).
		Str("query", s.query).
		Int("page", page).
		Int("total_pages", res.TotalPages).
		Int("added", added).
		Int("duplicates", dropped).
		Int("items", len(s.items)).
		Msg("Page applied")

	return nil
}

// supersedeLocked invalidates the current generation and cancels its fetch.
func (a *Aggregator[T]) supersedeLocked() {
	a.gen++
	if a.cancelFetch != nil {
		a.cancelFetch()
		a.cancelFetch = nil
	}
	a.loading = false
}

// notifyLocked signals Updates without blocking. mu must be held.
func (a *Aggregator[T]) notifyLocked() {
	if a.closed {
		return
	}
	select {
	case a.updates <- struct{}{}:
	default:
	}
}
