// Package seen persists the set of CELEX identifiers that no run may process
// again. It is the only memory shared between runs.
package seen

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/JakeFAU/cjeu-harvester/internal/celex"
)

// Store loads and atomically replaces the persisted seen-set.
//
// Load returns an empty set when nothing has been persisted yet and wraps
// crawler.ErrStorageRead for unreadable or corrupt state. Persist wraps
// crawler.ErrStorageWrite.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Persist(ctx context.Context, set Set) error
}

// Set is an unordered set of identifiers.
type Set map[celex.ID]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...celex.ID) Set {
	s := make(Set, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts ids.
func (s Set) Add(ids ...celex.ID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has reports membership.
func (s Set) Has(id celex.ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []celex.ID {
	out := make([]celex.ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// encode renders the set as an indented JSON array of sorted identifiers.
func encode(s Set) ([]byte, error) {
	ids := s.Sorted()
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal seen set: %w", err)
	}
	return append(data, '\n'), nil
}

// decode parses a JSON array of identifiers. Every entry must be canonical.
func decode(data []byte) (Set, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal seen set: %w", err)
	}
	out := make(Set, len(raw))
	for _, v := range raw {
		id, err := celex.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("seen set entry: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, nil
}
