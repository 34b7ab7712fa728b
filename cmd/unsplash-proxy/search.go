package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/unsplash-client/pkg/cache"
	"github.com/Sternrassler/unsplash-client/pkg/client"
	"github.com/Sternrassler/unsplash-client/pkg/pagination"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search photos and print the aggregated, deduplicated results",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	cmd.Flags().Int("pages", 1, "number of pages to load")
	cmd.Flags().Int("prefetch", 0, "download thumbnails with this many parallel requests (0 disables)")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pages, _ := cmd.Flags().GetInt("pages")
	prefetch, _ := cmd.Flags().GetInt("prefetch")

	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	agg := pagination.New[client.Photo](c, pagination.Config{
		Debounce: cfg.Search.Debounce,
		PerPage:  cfg.Search.PerPage,
	})
	defer agg.Close()

	st, err := collect(cmd.Context(), agg, strings.Join(args, " "), pages)
	if err != nil {
		return err
	}

	if prefetch > 0 && len(st.Items) > 0 {
		thumbs := make([]string, 0, len(st.Items))
		for _, p := range st.Items {
			thumbs = append(thumbs, p.URLs.Thumb)
		}
		if err := prefetchImages(cmd.Context(), c, thumbs, prefetch); err != nil {
			log.Warn().Err(err).Msg("Thumbnail prefetch incomplete")
		}
	}

	return printResults(cmd.OutOrStdout(), st)
}

// collect runs a search and loads up to pages pages. It returns the final
// state; a failed page ends the walk and its message is kept in the state.
func collect(ctx context.Context, agg *pagination.Aggregator[client.Photo], query string, pages int) (pagination.State[client.Photo], error) {
	agg.SetQuery(query)

	st, err := awaitSettled(ctx, agg)
	if err != nil {
		return st, err
	}

	for loaded := 1; loaded < pages && st.HasMore && st.Phase != pagination.PhaseError; loaded++ {
		if err := agg.LoadMore(ctx); err != nil && ctx.Err() != nil {
			return agg.State(), err
		}
		st = agg.State()
	}
	return st, nil
}

// awaitSettled blocks until the first page of the current query resolved.
func awaitSettled(ctx context.Context, agg *pagination.Aggregator[client.Photo]) (pagination.State[client.Photo], error) {
	for {
		st := agg.State()
		switch st.Phase {
		case pagination.PhaseReady, pagination.PhaseExhausted, pagination.PhaseError:
			return st, nil
		}
		select {
		case _, ok := <-agg.Updates():
			if !ok {
				return agg.State(), errors.New("search closed")
			}
		case <-ctx.Done():
			return agg.State(), ctx.Err()
		}
	}
}

func prefetchImages(ctx context.Context, c *client.Client, urls []string, concurrency int) error {
	keys := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		key, err := cache.URLKey(u)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	if err := c.Images().Prefetch(ctx, keys, concurrency); err != nil {
		return err
	}
	stats := c.Images().Stats()
	log.Info().
		Int("images", stats.Entries).
		Int64("bytes", stats.Cost).
		Msg("Thumbnails cached")
	return nil
}

func printResults(w io.Writer, st pagination.State[client.Photo]) error {
	if st.Message != "" {
		fmt.Fprintln(w, st.Message)
	}
	if len(st.Items) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tSIZE\tLIKES\tDESCRIPTION")
	for _, p := range st.Items {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%s\n",
			p.ID, p.User.Username, p.Width, p.Height, p.Likes, truncate(p.Description, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	more := "no more pages"
	if st.HasMore {
		more = "more pages available"
	}
	fmt.Fprintf(w, "\n%d photos from %d page(s), %s\n", len(st.Items), st.Page, more)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
