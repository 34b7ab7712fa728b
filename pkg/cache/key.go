package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// URLKey returns a canonical cache key for a resource URL.
// Scheme and host are lowercased, the fragment is dropped and query
// parameters are sorted so that equivalent URLs map to one key.
//
// Example:
//
//	https://Images.Unsplash.com/photo-1?w=400&fm=jpg#x
//	-> https://images.unsplash.com/photo-1?fm=jpg&w=400
func URLKey(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://")
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(u.EscapedPath())

	query := u.Query()
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			values := append([]string(nil), query[k]...)
			sort.Strings(values)
			for _, v := range values {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		b.WriteString("?")
		b.WriteString(strings.Join(parts, "&"))
	}

	return b.String(), nil
}
