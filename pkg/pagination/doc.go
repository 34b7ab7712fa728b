// Package pagination aggregates the pages of a remote search into one
// de-duplicated, ordered result list.
//
// An Aggregator owns one search session at a time. Query changes are
// debounced; when a query settles the previous session is superseded and
// page 1 of the new one is fetched. LoadMore fetches the next page. Items
// already seen in the session (by Key) are dropped, so upstream overlap
// between pages never produces duplicates.
//
// Example usage:
//
//	agg := pagination.New[client.Photo](unsplash, pagination.DefaultConfig())
//	defer agg.Close()
//
//	agg.SetQuery("cats")
//	for range agg.Updates() {
//		state := agg.State()
//		if state.Phase == pagination.PhaseReady && state.HasMore {
//			_ = agg.LoadMore(ctx)
//		}
//	}
//
// Every fetch is tagged with the session generation current when it was
// issued. A result that arrives after the query changed is discarded
// before it can touch the new session.
package pagination
