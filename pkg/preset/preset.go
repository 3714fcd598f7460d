// Package preset implements named filter presets and bounded message
// history (spec.md §4.10): presets are saved in memory only (no
// persistence, a spec.md Non-goal), cloned on read so callers can never
// mutate the stored copy, and history is an always-growing, never-reused
// append index over a fixed-capacity window.
package preset

import (
	"regexp"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/filter"
)

var nameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Store holds named filter presets in memory. Store does no locking of
// its own; concurrent use needs the caller's own synchronization.
type Store struct {
	presets map[string]*filter.Filter
}

func NewStore() *Store {
	return &Store{presets: make(map[string]*filter.Filter)}
}

// ValidName reports whether name satisfies the preset naming rule:
// letters/digits/underscore/hyphen, must start with a letter.
func ValidName(name string) bool { return nameRE.MatchString(name) }

// Save stores f under name, validating the name first.
func (s *Store) Save(name string, f *filter.Filter) error {
	if !ValidName(name) {
		return &mqttpulse.ConfigError{Msg: "invalid preset name: " + name}
	}
	s.presets[name] = f
	return nil
}

// Get returns a deep clone of the named preset so the caller can never
// mutate the stored Filter through the returned value.
func (s *Store) Get(name string) (*filter.Filter, bool) {
	f, ok := s.presets[name]
	if !ok {
		return nil, false
	}
	return cloneFilter(f), true
}

// cloneFilter deep-copies f: Clause is copied by value (its compiled
// regexp field is immutable once built and safe to share), and the
// Values slice used by IN clauses is copied so mutating a cloned Filter
// can never reach back into the stored one.
func cloneFilter(f *filter.Filter) *filter.Filter {
	out := &filter.Filter{Name: f.Name, Clauses: make([]filter.Clause, len(f.Clauses))}
	for i, c := range f.Clauses {
		out.Clauses[i] = c
		if c.Values != nil {
			out.Clauses[i].Values = append([]any(nil), c.Values...)
		}
	}
	return out
}

// Has reports whether name is currently stored.
func (s *Store) Has(name string) bool {
	_, ok := s.presets[name]
	return ok
}

// Delete removes name, reporting whether it existed.
func (s *Store) Delete(name string) bool {
	if _, ok := s.presets[name]; !ok {
		return false
	}
	delete(s.presets, name)
	return true
}

// List returns every stored preset name.
func (s *Store) List() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	return names
}

// Clear removes every stored preset.
func (s *Store) Clear() {
	s.presets = make(map[string]*filter.Filter)
}
