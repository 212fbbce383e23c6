package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/canvas"
)

// syntaxHints are substrings that mark a client-reported conversion
// failure as a problem with the mermaid source rather than the channel.
var syntaxHints = []string{"parse", "syntax", "lexical", "unrecognized", "expecting"}

// classifyConvertError rewrites raw conversion failures into messages an
// operator can act on. The client reports errors as free text, so
// classification is by keyword.
func classifyConvertError(err error) error {
	if errors.Is(err, canvas.ErrConvertTimeout) {
		return errors.New("mermaid conversion timed out; make sure a canvas page is open and responsive")
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range syntaxHints {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("mermaid syntax error: %s", err.Error())
		}
	}
	return fmt.Errorf("mermaid conversion failed: %s", err.Error())
}
