package gdd

import (
	"fmt"
	"sync"
)

// MaxEnumStrings bounds the number of entries in an EnumStringTable.
const MaxEnumStrings = 256

// EnumStringTable maps enum indices to state strings. It is safe for
// concurrent use; PVs typically share one table between their value GDDs.
type EnumStringTable struct {
	mu      sync.RWMutex
	strings []string
}

// NewEnumStringTable builds a table from the given strings.
func NewEnumStringTable(states ...string) (*EnumStringTable, error) {
	if len(states) > MaxEnumStrings {
		return nil, fmt.Errorf("%w: %d entries", ErrEnumTableFull, len(states))
	}
	t := &EnumStringTable{strings: make([]string, len(states))}
	copy(t.strings, states)
	return t, nil
}

// Len returns the number of entries.
func (t *EnumStringTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.strings)
}

// String returns the entry at index i.
func (t *EnumStringTable) String(i int) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: index %d of empty table", ErrEnumIndexRange, i)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.strings) {
		return "", fmt.Errorf("%w: index %d of %d", ErrEnumIndexRange, i, len(t.strings))
	}
	return t.strings[i], nil
}

// Index returns the index of s, or false when s is not an entry.
func (t *EnumStringTable) Index(s string) (int, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, v := range t.strings {
		if v == s {
			return i, true
		}
	}
	return 0, false
}

// SetString sets entry i, growing the table with empty strings as needed.
func (t *EnumStringTable) SetString(i int, s string) error {
	if i < 0 || i >= MaxEnumStrings {
		return fmt.Errorf("%w: index %d", ErrEnumTableFull, i)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.strings) <= i {
		t.strings = append(t.strings, "")
	}
	t.strings[i] = s
	return nil
}

// Strings returns a copy of all entries.
func (t *EnumStringTable) Strings() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.strings))
	copy(out, t.strings)
	return out
}

// Clear removes all entries.
func (t *EnumStringTable) Clear() {
	t.mu.Lock()
	t.strings = t.strings[:0]
	t.mu.Unlock()
}
