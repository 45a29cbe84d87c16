// Package visibility decides whether a viewer may see a post.
//
// The decision is a Set of Rules. Each Rule has two renderings kept next to
// each other in rules.go: Allow evaluates a hydrated post in memory (live
// stream, read-path final pass) and Apply narrows a gorm query (storage
// fallback). Both must agree for every post; scope_test.go checks that.
package visibility

import "sort"

// IDSet is a set of user ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership; a nil set is empty.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the members sorted, so generated SQL is deterministic.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Viewer is an immutable snapshot of the relationship facts of one user.
// A nil *Viewer is an anonymous viewer.
type Viewer struct {
	ID          string
	Following   IDSet // users the viewer follows
	Mutual      IDSet // users the viewer follows and who follow back
	Muted       IDSet
	RenoteMuted IDSet
	// Blocked holds users the viewer blocks and users blocking the viewer.
	Blocked        IDSet
	MutedInstances IDSet
	// MutedWords is a list of keyword groups; a group matches when every
	// keyword occurs. Keywords are lower-cased by the snapshot loader.
	MutedWords [][]string
}
