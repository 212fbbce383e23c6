// Package frontend embeds the built canvas single-page application. The
// server mounts it at the root and falls back to index.html for any
// unknown path so client-side routing works on deep links.
package frontend

import (
	"embed"
	"io/fs"
)

//go:embed dist
var dist embed.FS

// Dist is the built frontend bundle rooted at its dist directory.
var Dist fs.FS

func init() {
	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic("frontend: dist bundle missing: " + err.Error())
	}
	Dist = sub
}
