// Package keyword implements the OR-of-words product matcher.
package keyword

import "strings"

// Searchable is anything that exposes text for keyword matching.
type Searchable interface {
	SearchText() string
}

// Terms splits a query into lower-cased whitespace separated terms.
func Terms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Match reports whether any term of query is a case-insensitive substring
// of item's search text. An empty query matches everything.
func Match(item Searchable, query string) bool {
	return matchTerms(item, Terms(query))
}

// Filter returns the items matching query, preserving order. The input is
// returned unchanged for an empty query.
func Filter[T Searchable](items []T, query string) []T {
	terms := Terms(query)
	if len(terms) == 0 {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if matchTerms(it, terms) {
			out = append(out, it)
		}
	}
	return out
}

func matchTerms(item Searchable, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	text := strings.ToLower(item.SearchText())
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
