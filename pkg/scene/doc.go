// Package scene defines the versioned visual-document model: elements,
// app state, and the Scene container that owns both.
//
// A Scene is an isolated document identified by a string id. Its element
// array is append-mostly: deletion is a tombstone flag, never removal, so
// weak references between elements (bound text, arrow bindings, frame
// membership) stay resolvable. Every accepted mutation bumps the scene
// version; the version is strictly increasing and is the only ordering
// signal clients use to decide whether an incoming snapshot is
// authoritative.
//
// The package has no I/O. Ownership and lifecycle live in pkg/store;
// fan-out to browser clients lives in pkg/canvas.
package scene
