package scene

import "testing"

func TestNormalizeDefaultShapeSize(t *testing.T) {
	els := NormalizeBatch([]*Element{{Type: TypeRectangle, X: 10, Y: 20}})

	el := els[0]
	if el.Width != 100 {
		t.Errorf("Width = %v, want 100", el.Width)
	}
	if el.Height != 100 {
		t.Errorf("Height = %v, want 100", el.Height)
	}
	if el.ID == "" {
		t.Error("missing id should be generated")
	}
}

func TestNormalizeExplicitSizeKept(t *testing.T) {
	els := NormalizeBatch([]*Element{{Type: TypeEllipse, Width: 42, Height: 7}})
	if els[0].Width != 42 || els[0].Height != 7 {
		t.Errorf("explicit geometry changed: %v x %v", els[0].Width, els[0].Height)
	}
}

func TestNormalizeTextSizing(t *testing.T) {
	els := NormalizeBatch([]*Element{{Type: TypeText, Text: "0123456789", FontSize: 20}})

	el := els[0]
	// 10 chars * 20px * 0.6 + 10 padding
	if el.Width != 130 {
		t.Errorf("Width = %v, want 130", el.Width)
	}
	if el.Height != 25 {
		t.Errorf("Height = %v, want 25", el.Height)
	}
}

func TestNormalizeTextDefaultFontSize(t *testing.T) {
	els := NormalizeBatch([]*Element{{Type: TypeText, Text: "hi"}})
	if els[0].FontSize != DefaultFontSize {
		t.Errorf("FontSize = %v, want %v", els[0].FontSize, DefaultFontSize)
	}
}

func TestNormalizeLinearMinimumPoints(t *testing.T) {
	tests := []struct {
		name string
		in   *Element
		want []Point
	}{
		{
			name: "no points no size",
			in:   &Element{Type: TypeArrow},
			want: []Point{{0, 0}, {100, 0}},
		},
		{
			name: "no points with size",
			in:   &Element{Type: TypeLine, Width: 50, Height: 30},
			want: []Point{{0, 0}, {50, 30}},
		},
		{
			name: "single point coerced",
			in:   &Element{Type: TypeFreedraw, Width: 10, Points: []Point{{1, 1}}},
			want: []Point{{0, 0}, {10, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			els := NormalizeBatch([]*Element{tt.in})
			got := els[0].Points
			if len(got) < 2 {
				t.Fatalf("points length = %d, want >= 2", len(got))
			}
			if got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Errorf("points = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeLinearKeepsValidPoints(t *testing.T) {
	in := &Element{Type: TypeArrow, Points: []Point{{0, 0}, {5, 5}, {10, 0}}}
	els := NormalizeBatch([]*Element{in})
	if len(els[0].Points) != 3 {
		t.Errorf("points length = %d, want 3", len(els[0].Points))
	}
}

func TestNormalizeBoundTextSynthesis(t *testing.T) {
	container := &Element{ID: "box", Type: TypeRectangle}
	text := &Element{ID: "txt", Type: TypeText, Text: "label", ContainerID: "box"}

	NormalizeBatch([]*Element{container, text})

	if !container.HasBoundText("txt") {
		t.Errorf("container.BoundElements = %v, want text back-reference", container.BoundElements)
	}
}

func TestNormalizeBoundTextIdempotent(t *testing.T) {
	container := &Element{
		ID:            "box",
		Type:          TypeRectangle,
		BoundElements: []BoundElement{{ID: "txt", Type: "text"}},
	}
	text := &Element{ID: "txt", Type: TypeText, ContainerID: "box"}

	NormalizeBatch([]*Element{container, text})

	if len(container.BoundElements) != 1 {
		t.Errorf("BoundElements length = %d, want 1", len(container.BoundElements))
	}
}

func TestNormalizeBoundTextContainerOutsideBatch(t *testing.T) {
	text := &Element{ID: "txt", Type: TypeText, ContainerID: "elsewhere"}
	// Must not panic or invent a container; weak references resolve lazily.
	NormalizeBatch([]*Element{text})
	if text.ContainerID != "elsewhere" {
		t.Errorf("ContainerID = %q, want unchanged", text.ContainerID)
	}
}

func TestExpandLabelDefaults(t *testing.T) {
	label := ExpandLabel(nil, "hello")
	if label.Text != "hello" {
		t.Errorf("Text = %q", label.Text)
	}
	if label.TextAlign != "center" || label.VerticalAlign != "middle" {
		t.Errorf("alignment = %q/%q, want center/middle", label.TextAlign, label.VerticalAlign)
	}
}

func TestExpandLabelPreservesPriorFields(t *testing.T) {
	prior := &Label{Text: "old", FontSize: 14, TextAlign: "left", StrokeColor: "#f00"}
	label := ExpandLabel(prior, "new")

	if label.Text != "new" {
		t.Errorf("Text = %q, want new", label.Text)
	}
	if label.FontSize != 14 || label.TextAlign != "left" || label.StrokeColor != "#f00" {
		t.Errorf("prior fields not preserved: %+v", label)
	}
}
