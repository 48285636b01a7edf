package blocklist

import "strings"

// Set is an order-preserving set of blocked entries. Entries that normalize
// to a domain are stored as that domain; anything else is kept as trimmed
// lowercase text so it can still be substring-matched.
type Set struct {
	entries []string
	index   map[string]struct{}
}

// NewSet builds a Set from raw input, normalizing and deduplicating.
func NewSet(raw []string) *Set {
	s := &Set{index: make(map[string]struct{})}
	for _, r := range raw {
		s.Add(r)
	}
	return s
}

// Canonical returns the stored form of a raw entry.
func Canonical(raw string) string {
	if d, ok := Normalize(raw); ok && isDomainLike(raw) {
		return d
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// Add inserts raw and reports whether it was absent.
func (s *Set) Add(raw string) (string, bool) {
	c := Canonical(raw)
	if c == "" {
		return "", false
	}
	if _, ok := s.index[c]; ok {
		return c, false
	}
	s.index[c] = struct{}{}
	s.entries = append(s.entries, c)
	return c, true
}

// Remove deletes raw and reports whether it was present.
func (s *Set) Remove(raw string) bool {
	c := Canonical(raw)
	if _, ok := s.index[c]; !ok {
		return false
	}
	delete(s.index, c)
	for i, e := range s.entries {
		if e == c {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	return true
}

func (s *Set) Contains(raw string) bool {
	_, ok := s.index[Canonical(raw)]
	return ok
}

func (s *Set) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in insertion order.
func (s *Set) Entries() []string {
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}
