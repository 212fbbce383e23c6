package scene

// ElementType identifies the shape kind of an element.
type ElementType string

// Supported element types.
const (
	TypeRectangle  ElementType = "rectangle"
	TypeEllipse    ElementType = "ellipse"
	TypeDiamond    ElementType = "diamond"
	TypeArrow      ElementType = "arrow"
	TypeText       ElementType = "text"
	TypeLine       ElementType = "line"
	TypeFreedraw   ElementType = "freedraw"
	TypeImage      ElementType = "image"
	TypeFrame      ElementType = "frame"
	TypeMagicFrame ElementType = "magicframe"
	TypeEmbeddable ElementType = "embeddable"
)

// elementTypes is the set of recognized element kinds.
var elementTypes = map[ElementType]struct{}{
	TypeRectangle:  {},
	TypeEllipse:    {},
	TypeDiamond:    {},
	TypeArrow:      {},
	TypeText:       {},
	TypeLine:       {},
	TypeFreedraw:   {},
	TypeImage:      {},
	TypeFrame:      {},
	TypeMagicFrame: {},
	TypeEmbeddable: {},
}

// Valid reports whether t is a recognized element type.
func (t ElementType) Valid() bool {
	_, ok := elementTypes[t]
	return ok
}

// Linear reports whether elements of this type carry a point array
// instead of width/height geometry.
func (t ElementType) Linear() bool {
	return t == TypeArrow || t == TypeLine || t == TypeFreedraw
}

// Point is a 2D coordinate encoded on the wire as a [x, y] pair.
type Point [2]float64

// BoundElement is a weak back-reference from a container to an associated
// element (typically bound text). It carries no ownership; the target may
// not exist and is resolved lazily at render time.
type BoundElement struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Binding describes one end of an arrow attached to another element.
// Like BoundElement it is a weak reference by id.
type Binding struct {
	ElementID string  `json:"elementId"`
	Focus     float64 `json:"focus"`
	Gap       float64 `json:"gap"`
}

// Label is the convenience text attached to a non-text element. The
// rendering surface expands it into a bound text element.
type Label struct {
	Text          string  `json:"text"`
	FontSize      float64 `json:"fontSize,omitempty"`
	FontFamily    int     `json:"fontFamily,omitempty"`
	TextAlign     string  `json:"textAlign,omitempty"`
	VerticalAlign string  `json:"verticalAlign,omitempty"`
	StrokeColor   string  `json:"strokeColor,omitempty"`
}

// Element is one visual object within a scene. The same struct carries
// every element kind; which fields are meaningful depends on Type.
// A nil/zero field is simply absent on the wire.
type Element struct {
	ID   string      `json:"id"`
	Type ElementType `json:"type"`

	// Geometry
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Angle  float64 `json:"angle,omitempty"`
	Points []Point `json:"points,omitempty"`

	// Style
	StrokeColor     string   `json:"strokeColor,omitempty"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	FillStyle       string   `json:"fillStyle,omitempty"`
	StrokeWidth     float64  `json:"strokeWidth,omitempty"`
	StrokeStyle     string   `json:"strokeStyle,omitempty"`
	Roughness       float64  `json:"roughness,omitempty"`
	Opacity         *float64 `json:"opacity,omitempty"`

	// Text. Text/FontSize apply to text elements; Label is the sugar
	// form for attaching text to a shape or arrow.
	Text          string  `json:"text,omitempty"`
	FontSize      float64 `json:"fontSize,omitempty"`
	FontFamily    int     `json:"fontFamily,omitempty"`
	TextAlign     string  `json:"textAlign,omitempty"`
	VerticalAlign string  `json:"verticalAlign,omitempty"`
	ContainerID   string  `json:"containerId,omitempty"`
	Label         *Label  `json:"label,omitempty"`

	// Relations (all weak references by id)
	GroupIDs      []string       `json:"groupIds,omitempty"`
	FrameID       string         `json:"frameId,omitempty"`
	BoundElements []BoundElement `json:"boundElements,omitempty"`
	StartBinding  *Binding       `json:"startBinding,omitempty"`
	EndBinding    *Binding       `json:"endBinding,omitempty"`

	// Misc passthrough
	Link   string `json:"link,omitempty"`
	Locked bool   `json:"locked,omitempty"`
	FileID string `json:"fileId,omitempty"`

	// Lifecycle. IsDeleted is the tombstone flag: the element stays in
	// the array but is excluded from active views.
	IsDeleted bool  `json:"isDeleted,omitempty"`
	DeletedAt int64 `json:"deletedAt,omitempty"`

	// Per-element counters for observability. Not used for merge logic.
	Version int   `json:"version,omitempty"`
	Updated int64 `json:"updated,omitempty"`
}

// HasBoundText reports whether the element already back-references the
// given text element id.
func (e *Element) HasBoundText(textID string) bool {
	for _, b := range e.BoundElements {
		if b.Type == "text" && b.ID == textID {
			return true
		}
	}
	return false
}
