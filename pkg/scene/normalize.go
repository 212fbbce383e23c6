package scene

import (
	"time"

	"github.com/google/uuid"
)

// Sizing defaults applied when a skeleton omits geometry.
const (
	DefaultShapeSize = 100.0
	DefaultFontSize  = 20.0

	// Empirical per-character width ratio and padding used to estimate
	// the box of an auto-sized text element.
	textWidthRatio = 0.6
	textPadding    = 10.0
	textLineHeight = 1.25
)

// NormalizeBatch prepares a batch of element skeletons for staging:
// missing ids are generated, geometry defaults are filled in, malformed
// point arrays are coerced, label sugar gets alignment defaults, and
// container back-references are synthesized for text elements whose
// container is part of the same batch.
func NormalizeBatch(els []*Element) []*Element {
	byID := make(map[string]*Element, len(els))
	now := time.Now().UnixMilli()

	for _, el := range els {
		normalizeElement(el, now)
		byID[el.ID] = el
	}

	// Bound-text synthesis: both sides must be known at creation time.
	// The back-reference is weak; a containerId pointing outside the
	// batch is left for the rendering surface to resolve.
	for _, el := range els {
		if el.Type != TypeText || el.ContainerID == "" {
			continue
		}
		container, ok := byID[el.ContainerID]
		if !ok || container.HasBoundText(el.ID) {
			continue
		}
		container.BoundElements = append(container.BoundElements, BoundElement{
			ID:   el.ID,
			Type: "text",
		})
	}

	return els
}

func normalizeElement(el *Element, now int64) {
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	if el.Version == 0 {
		el.Version = 1
	}
	if el.Updated == 0 {
		el.Updated = now
	}

	switch {
	case el.Type == TypeText:
		normalizeText(el)
	case el.Type.Linear():
		normalizeLinear(el)
	default:
		if el.Width == 0 {
			el.Width = DefaultShapeSize
		}
		if el.Height == 0 {
			el.Height = DefaultShapeSize
		}
	}

	if el.Label != nil {
		applyLabelDefaults(el.Label)
	}
}

// normalizeText estimates the box of a text element from its content:
// width from character count, font size and the width ratio plus fixed
// padding, height from the line height factor.
func normalizeText(el *Element) {
	if el.FontSize == 0 {
		el.FontSize = DefaultFontSize
	}
	if el.Width == 0 {
		el.Width = float64(len(el.Text))*el.FontSize*textWidthRatio + textPadding
	}
	if el.Height == 0 {
		el.Height = el.FontSize * textLineHeight
	}
	if el.TextAlign == "" {
		el.TextAlign = "left"
	}
	if el.VerticalAlign == "" {
		el.VerticalAlign = "top"
	}
}

// normalizeLinear guarantees the two-point minimum for arrow, line and
// freedraw elements. Under-specified arrays are coerced to the canonical
// fallback derived from the declared width/height.
func normalizeLinear(el *Element) {
	if el.Width == 0 && el.Height == 0 && len(el.Points) < 2 {
		el.Width = DefaultShapeSize
	}
	if len(el.Points) < 2 {
		el.Points = []Point{{0, 0}, {el.Width, el.Height}}
	}
}

// ExpandLabel converts a free-text property on a non-text element into
// the structured label form, preserving fields of a prior label.
func ExpandLabel(prior *Label, text string) *Label {
	label := &Label{}
	if prior != nil {
		*label = *prior
	}
	label.Text = text
	applyLabelDefaults(label)
	return label
}

func applyLabelDefaults(l *Label) {
	if l.FontSize == 0 {
		l.FontSize = DefaultFontSize
	}
	if l.TextAlign == "" {
		l.TextAlign = "center"
	}
	if l.VerticalAlign == "" {
		l.VerticalAlign = "middle"
	}
}
