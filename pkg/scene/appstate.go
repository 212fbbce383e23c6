package scene

import "encoding/json"

// CollaboratorsKey is the transient app-state key carrying live cursor
// positions. It is never serialized and never relayed: every boundary
// crossing (wire encode, wire decode, merge) strips it.
const CollaboratorsKey = "collaborators"

// AppState is the per-scene view state: a small set of well-known fields
// plus an open passthrough bag for keys the server does not interpret.
type AppState struct {
	ViewBackgroundColor string  `json:"viewBackgroundColor,omitempty"`
	Theme               string  `json:"theme,omitempty"`
	GridSize            float64 `json:"gridSize,omitempty"`
	ScrollX             float64 `json:"scrollX,omitempty"`
	ScrollY             float64 `json:"scrollY,omitempty"`
	Zoom                float64 `json:"zoom,omitempty"`
	ZenModeEnabled      bool    `json:"zenModeEnabled,omitempty"`
	ViewModeEnabled     bool    `json:"viewModeEnabled,omitempty"`

	// Extra holds unrecognized keys verbatim. CollaboratorsKey is never
	// stored here.
	Extra map[string]any `json:"-"`
}

// DefaultAppState returns the app state a fresh scene starts with.
func DefaultAppState() *AppState {
	return &AppState{
		ViewBackgroundColor: "#ffffff",
		Theme:               "light",
	}
}

// Clone returns a copy of the app state with its own Extra map.
func (a *AppState) Clone() *AppState {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Extra != nil {
		clone.Extra = make(map[string]any, len(a.Extra))
		for k, v := range a.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}

// appStateAlias avoids MarshalJSON recursion.
type appStateAlias AppState

// MarshalJSON flattens the well-known fields and Extra into one object.
// The collaborators key is dropped even if it somehow reached Extra.
func (a *AppState) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal((*appStateAlias)(a))
	if err != nil {
		return nil, err
	}
	if len(a.Extra) == 0 {
		return known, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range a.Extra {
		if k == CollaboratorsKey {
			continue
		}
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes an open object into the fixed fields, routing
// unrecognized keys to Extra and discarding collaborators.
func (a *AppState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(data, (*appStateAlias)(a)); err != nil {
		return err
	}

	for key, val := range raw {
		if key == CollaboratorsKey || knownAppStateKey(key) {
			continue
		}
		var v any
		if err := json.Unmarshal(val, &v); err != nil {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]any)
		}
		a.Extra[key] = v
	}
	return nil
}

// Merge applies a partial update expressed as a generic map. Known keys
// overwrite the fixed fields, unknown keys land in Extra, and the
// collaborators key is ignored entirely.
func (a *AppState) Merge(partial map[string]any) {
	for key, val := range partial {
		if key == CollaboratorsKey {
			continue
		}
		switch key {
		case "viewBackgroundColor":
			if s, ok := val.(string); ok {
				a.ViewBackgroundColor = s
			}
		case "theme":
			if s, ok := val.(string); ok {
				a.Theme = s
			}
		case "gridSize":
			if f, ok := asFloat(val); ok {
				a.GridSize = f
			}
		case "scrollX":
			if f, ok := asFloat(val); ok {
				a.ScrollX = f
			}
		case "scrollY":
			if f, ok := asFloat(val); ok {
				a.ScrollY = f
			}
		case "zoom":
			if f, ok := asFloat(val); ok {
				a.Zoom = f
			}
		case "zenModeEnabled":
			if b, ok := val.(bool); ok {
				a.ZenModeEnabled = b
			}
		case "viewModeEnabled":
			if b, ok := val.(bool); ok {
				a.ViewModeEnabled = b
			}
		default:
			if a.Extra == nil {
				a.Extra = make(map[string]any)
			}
			a.Extra[key] = val
		}
	}
}

func knownAppStateKey(key string) bool {
	switch key {
	case "viewBackgroundColor", "theme", "gridSize", "scrollX", "scrollY",
		"zoom", "zenModeEnabled", "viewModeEnabled":
		return true
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
