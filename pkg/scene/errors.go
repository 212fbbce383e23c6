package scene

import "errors"

// Sentinel errors for scene mutations.
var (
	// ErrElementNotFound is returned when an update or delete names an
	// element id that is not present in the scene.
	ErrElementNotFound = errors.New("scene: element not found")
)
