// Package ledger holds the path ledger: the walker's canonical entry
// sequence joined with the attributor's claims, kept entirely in memory
// for the duration of one build (spec §5). It also implements the
// shared-parent-directory synthesis described in spec §4.5/§9: every
// bucket must be independently extractable, so any directory that is a
// strict ancestor of one of the bucket's paths is added to the bucket
// with its exact recorded metadata.
package ledger

import (
	"path"
	"sort"

	"github.com/kaito-project/chunkah/pkg/component"
	"github.com/kaito-project/chunkah/pkg/entry"
)

// Ledger is the in-memory join of walker output and attributor output.
type Ledger struct {
	byPath map[string]entry.Entry
	order  []string // canonical order, as produced by the walker

	// Claims maps a path to the component set that claims it; a path
	// absent from Claims (or mapped to an empty set) is unattributed.
	Claims map[string]component.Set
}

// New builds a Ledger from the walker's canonical entry sequence. Claims
// starts empty; callers typically populate it by resolving each entry's
// path through an attributor.Attributor immediately after New.
func New(entries []entry.Entry) *Ledger {
	l := &Ledger{
		byPath: make(map[string]entry.Entry, len(entries)),
		order:  make([]string, 0, len(entries)),
		Claims: make(map[string]component.Set, len(entries)),
	}
	for _, e := range entries {
		l.byPath[e.Path] = e
		l.order = append(l.order, e.Path)
	}
	return l
}

// Entries returns every entry in canonical order.
func (l *Ledger) Entries() []entry.Entry {
	out := make([]entry.Entry, 0, len(l.order))
	for _, p := range l.order {
		out = append(out, l.byPath[p])
	}
	return out
}

// Lookup returns the entry recorded at p, if any.
func (l *Ledger) Lookup(p string) (entry.Entry, bool) {
	e, ok := l.byPath[p]
	return e, ok
}

// PrimaryComponent returns the single component a path is assigned to at
// pack time: the lexicographically smallest id among its claimants, or
// component.Unattributed if unclaimed.
func (l *Ledger) PrimaryComponent(p string) component.ID {
	return l.Claims[p].Primary()
}

// ResolveBucket takes the set of paths directly assigned to a bucket
// (i.e. whose PrimaryComponent is one of the bucket's components) and
// returns the full, deduplicated, path-sorted entry list for that
// bucket: the direct entries plus every strict ancestor directory up to
// "/", each carrying its exact ledger metadata, so the resulting tar
// stream is extractable standalone.
func (l *Ledger) ResolveBucket(paths []string) []entry.Entry {
	seen := make(map[string]struct{}, len(paths)*2)
	var resolved []entry.Entry

	var addWithAncestors func(p string)
	addWithAncestors = func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		e, ok := l.byPath[p]
		if !ok {
			return
		}
		seen[p] = struct{}{}
		resolved = append(resolved, e)

		if p == "/" {
			return
		}
		parent := path.Dir(p)
		addWithAncestors(parent)
	}

	for _, p := range paths {
		addWithAncestors(p)
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Path < resolved[j].Path })
	return resolved
}
