// Package catalog caches the canonical exercise catalog and maps generated
// exercise names onto it.
package catalog

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyCatalog is returned when a source yields no entries
var ErrEmptyCatalog = errors.New("exercise catalog is empty")

// Entry is one canonical exercise
type Entry struct {
	ID      string
	Name    string
	Aliases []string
}

// Source loads the full catalog
type Source interface {
	Fetch(ctx context.Context) ([]Entry, error)
}

// StaticSource serves a fixed list
type StaticSource []Entry

// Fetch implements Source
func (s StaticSource) Fetch(context.Context) ([]Entry, error) {
	if len(s) == 0 {
		return nil, ErrEmptyCatalog
	}
	out := make([]Entry, len(s))
	copy(out, s)
	return out, nil
}

// matchKey folds case and drops punctuation so "Push-Up" and "push up" match
func matchKey(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			space = false
		case !space && b.Len() > 0:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// index maps every name and alias key to its entry id
func index(entries []Entry) map[string]string {
	idx := make(map[string]string, len(entries)*2)
	for _, e := range entries {
		if key := matchKey(e.Name); key != "" {
			idx[key] = e.ID
		}
		for _, alias := range e.Aliases {
			if key := matchKey(alias); key != "" {
				if _, taken := idx[key]; !taken {
					idx[key] = e.ID
				}
			}
		}
	}
	return idx
}
