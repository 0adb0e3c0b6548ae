package cas

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/marmos91/dittoca/internal/protocol/ca"
)

// EventMask selects which monitor events a subscription receives.
type EventMask uint16

// Built-in event masks.
const (
	EventValue    = EventMask(ca.MaskValue)
	EventLog      = EventMask(ca.MaskLog)
	EventAlarm    = EventMask(ca.MaskAlarm)
	EventProperty = EventMask(ca.MaskProperty)
)

// ErrEventMasksExhausted is returned when every mask bit is in use.
var ErrEventMasksExhausted = errors.New("cas: no free event mask bits")

// EventRegistry names event mask bits. The four built-in masks are
// registered at creation; hosts may register their own.
type EventRegistry struct {
	mu     sync.RWMutex
	byName map[string]EventMask
	names  [16]string
}

// NewEventRegistry returns a registry holding the built-in masks.
func NewEventRegistry() *EventRegistry {
	r := &EventRegistry{byName: make(map[string]EventMask)}
	for _, b := range []struct {
		name string
		mask EventMask
	}{
		{"value", EventValue},
		{"log", EventLog},
		{"alarm", EventAlarm},
		{"property", EventProperty},
	} {
		r.set(b.name, b.mask)
	}
	return r
}

func (r *EventRegistry) set(name string, m EventMask) {
	r.byName[name] = m
	for i := range r.names {
		if m == 1<<i {
			r.names[i] = name
		}
	}
}

// Register returns the mask registered under name, allocating the next
// free bit for a new name.
func (r *EventRegistry) Register(name string) (EventMask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byName[name]; ok {
		return m, nil
	}
	for i, n := range r.names {
		if n == "" {
			m := EventMask(1 << i)
			r.set(name, m)
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrEventMasksExhausted, name)
}

// Lookup returns the mask registered under name.
func (r *EventRegistry) Lookup(name string) (EventMask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// Parse converts a "value|alarm" list into a mask.
func (r *EventRegistry) Parse(list string) (EventMask, error) {
	var m EventMask
	for _, name := range strings.Split(list, "|") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		bit, ok := r.Lookup(name)
		if !ok {
			return 0, fmt.Errorf("cas: unknown event mask %q", name)
		}
		m |= bit
	}
	return m, nil
}

// Format renders m as a "value|alarm" list.
func (r *EventRegistry) Format(m EventMask) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var parts []string
	for i, n := range r.names {
		if m&(1<<i) == 0 {
			continue
		}
		if n == "" {
			n = fmt.Sprintf("bit%d", i)
		}
		parts = append(parts, n)
	}
	return strings.Join(parts, "|")
}
