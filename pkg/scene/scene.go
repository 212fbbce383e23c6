package scene

import (
	"encoding/json"
	"sync"
	"time"
)

// Scene is one isolated, versioned document: an element array plus view
// state, identified by a string id. Version increases on every accepted
// mutation and never rolls back; clients use it as the sole staleness
// signal (last write wins, no vector clocks).
type Scene struct {
	ID string

	mu          sync.RWMutex
	elements    []*Element
	appState    *AppState
	version     int64
	lastUpdated time.Time
}

// Snapshot is an immutable copy of a scene taken for serialization.
type Snapshot struct {
	ID          string     `json:"sessionId"`
	Elements    []*Element `json:"elements"`
	AppState    *AppState  `json:"appState"`
	Version     int64      `json:"version"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// New creates an empty scene with default app state and version 0.
func New(id string) *Scene {
	return &Scene{
		ID:          id,
		elements:    []*Element{},
		appState:    DefaultAppState(),
		lastUpdated: time.Now(),
	}
}

// touchLocked bumps the version and refreshes the update timestamp.
// Callers must hold mu.
func (s *Scene) touchLocked() {
	s.version++
	s.lastUpdated = time.Now()
}

// Version returns the current scene version.
func (s *Scene) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// LastUpdated returns the time of the last accepted mutation.
func (s *Scene) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// ElementCount returns the total element count, tombstones included.
func (s *Scene) ElementCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// Snapshot returns a copy of the scene safe to serialize outside the lock.
// Element values are copied; the app state is cloned.
func (s *Scene) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elements := make([]*Element, len(s.elements))
	for i, el := range s.elements {
		copied := *el
		elements[i] = &copied
	}
	return &Snapshot{
		ID:          s.ID,
		Elements:    elements,
		AppState:    s.appState.Clone(),
		Version:     s.version,
		LastUpdated: s.lastUpdated,
	}
}

// ActiveElements returns the consumer-facing view: every element whose
// tombstone flag is unset. The underlying array is never compacted.
func (s *Scene) ActiveElements() []*Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*Element, 0, len(s.elements))
	for _, el := range s.elements {
		if el.IsDeleted {
			continue
		}
		copied := *el
		active = append(active, &copied)
	}
	return active
}

// TypeCounts returns per-type counts of active elements.
func (s *Scene) TypeCounts() map[ElementType]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[ElementType]int)
	for _, el := range s.elements {
		if !el.IsDeleted {
			counts[el.Type]++
		}
	}
	return counts
}

// AddElements appends elements and bumps the version.
func (s *Scene) AddElements(els []*Element) {
	if len(els) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = append(s.elements, els...)
	s.touchLocked()
}

// UpsertElements merges elements by id: existing ids are replaced in
// place, new ids are appended. Re-applying the same batch leaves the
// element count unchanged, which makes skeleton replay idempotent.
func (s *Scene) UpsertElements(els []*Element) {
	if len(els) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[string]int, len(s.elements))
	for i, el := range s.elements {
		index[el.ID] = i
	}
	for _, el := range els {
		if i, ok := index[el.ID]; ok {
			s.elements[i] = el
		} else {
			index[el.ID] = len(s.elements)
			s.elements = append(s.elements, el)
		}
	}
	s.touchLocked()
}

// ReplaceElements swaps the whole element array (full-scene update from a
// client) and merges the partial app state. Last writer wins.
func (s *Scene) ReplaceElements(els []*Element, appState map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if els != nil {
		s.elements = els
	}
	if appState != nil {
		s.appState.Merge(appState)
	}
	s.touchLocked()
}

// MergeElement applies a shallow property merge onto the element with the
// given id via a JSON round-trip, matching the open-ended update contract.
// Returns ErrElementNotFound if the id is absent.
func (s *Scene) MergeElement(id string, props map[string]any) (*Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, el := range s.elements {
		if el.ID != id {
			continue
		}
		merged, err := mergeElementProps(el, props)
		if err != nil {
			return nil, err
		}
		merged.ID = id
		merged.Version = el.Version + 1
		merged.Updated = time.Now().UnixMilli()
		s.elements[i] = merged
		s.touchLocked()
		copied := *merged
		return &copied, nil
	}
	return nil, ErrElementNotFound
}

// DeleteElement soft-deletes the element with the given id. The element
// stays in the array with its tombstone flag and deletion timestamp set.
func (s *Scene) DeleteElement(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, el := range s.elements {
		if el.ID == id {
			el.IsDeleted = true
			el.DeletedAt = time.Now().UnixMilli()
			el.Version++
			el.Updated = el.DeletedAt
			s.touchLocked()
			return nil
		}
	}
	return ErrElementNotFound
}

// Element returns a copy of the element with the given id.
func (s *Scene) Element(id string) (*Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, el := range s.elements {
		if el.ID == id {
			copied := *el
			return &copied, true
		}
	}
	return nil, false
}

// SetBackgroundColor sets the canvas background and bumps the version.
func (s *Scene) SetBackgroundColor(color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appState.ViewBackgroundColor = color
	s.touchLocked()
}

// BackgroundColor returns the current canvas background color.
func (s *Scene) BackgroundColor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appState.ViewBackgroundColor
}

// Clear wipes the element array and bumps the version. The scene id and
// any attached connections are untouched.
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = []*Element{}
	s.touchLocked()
}

// mergeElementProps overlays props onto el field-by-field through JSON.
// This is a shallow merge: a prop replaces the whole field it names.
func mergeElementProps(el *Element, props map[string]any) (*Element, error) {
	base, err := json.Marshal(el)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range props {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var merged Element
	if err := json.Unmarshal(out, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}
