package pagination

import (
	"context"
	"errors"
	"time"
)

// ErrSuperseded is returned by LoadMore when the query changed while its
// page was in flight and the result was discarded.
var ErrSuperseded = errors.New("search session superseded")

// Keyed is implemented by items with a stable identity.
type Keyed interface {
	Key() string
}

// Page is one page of search results.
type Page[T any] struct {
	// TotalPages is the server-reported page count for the query.
	TotalPages int
	Items      []T
}

// PageFetcher performs one page request for a query.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, query string, page, perPage int) (Page[T], error)
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc[T any] func(ctx context.Context, query string, page, perPage int) (Page[T], error)

// FetchPage implements PageFetcher.
func (f FetcherFunc[T]) FetchPage(ctx context.Context, query string, page, perPage int) (Page[T], error) {
	return f(ctx, query, page, perPage)
}

// Phase is the lifecycle state of the aggregator.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseSearching   Phase = "searching"
	PhaseReady       Phase = "ready"
	PhaseLoadingMore Phase = "loading_more"
	PhaseExhausted   Phase = "exhausted"
	PhaseError       Phase = "error"
)

// State is a snapshot of the aggregator exposed to the calling layer.
type State[T any] struct {
	Query     string
	Items     []T
	Page      int
	HasMore   bool
	IsLoading bool
	Message   string
	Phase     Phase
}

// Config holds aggregator configuration.
type Config struct {
	// Debounce is the quiet window before a query change is applied.
	Debounce time.Duration
	// PerPage is the page size requested from the fetcher.
	PerPage int
}

// DefaultConfig returns the configuration used by the photo browser.
func DefaultConfig() Config {
	return Config{
		Debounce: 500 * time.Millisecond,
		PerPage:  30,
	}
}
