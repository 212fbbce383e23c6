package canvas

import "testing"

func TestSanitizeStaticPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", "", true},
		{"/index.html", "index.html", true},
		{"/assets/app.js", "assets/app.js", true},
		{"/some/client/route", "some/client/route", true},
		{"/../etc/passwd", "", false},
		{"/assets/../../etc/passwd", "", false},
		{"//etc/passwd", "", false},
		{"/assets\\app.js", "", false},
		{"/a\x00b", "", false},
	}

	for _, tt := range tests {
		got, ok := sanitizeStaticPath(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("sanitizeStaticPath(%q) = %q, %v; want %q, %v",
				tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
