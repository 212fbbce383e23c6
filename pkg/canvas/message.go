package canvas

import (
	"encoding/json"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/scene"
)

// MessageType is the discriminant on every wire message.
type MessageType string

// Wire message catalog.
const (
	// server -> client
	MsgInit        MessageType = "init"
	MsgAddElements MessageType = "add_elements"

	// client -> server
	MsgJoinSession       MessageType = "join_session"
	MsgReady             MessageType = "ready"
	MsgElementsConverted MessageType = "elements_converted"

	// bidirectional
	MsgUpdate              MessageType = "update"
	MsgMermaidConvert      MessageType = "mermaid_convert"
	MsgMermaidConverted    MessageType = "mermaid_converted"
	MsgMermaidConvertError MessageType = "mermaid_convert_error"
	MsgExport              MessageType = "export"
	MsgExportResult        MessageType = "export_result"
	MsgPing                MessageType = "ping"
	MsgPong                MessageType = "pong"
)

// envelope is the superset decode target for inbound messages. The
// channel is defensive only: fields irrelevant to a given type are
// ignored, and payloads that fail to decode are dropped by the caller.
type envelope struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	Elements  []*scene.Element `json:"elements,omitempty"`
	AppState  map[string]any   `json:"appState,omitempty"`

	// Skeleton-batch correlation
	BatchID     string `json:"batchId,omitempty"`
	LastBatchID string `json:"lastBatchId,omitempty"`

	// Export / conversion correlation
	RequestID string `json:"requestId,omitempty"`
	Data      string `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// initMessage delivers the full scene snapshot on connect and rebind.
type initMessage struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"sessionId"`
	Elements  []*scene.Element `json:"elements"`
	AppState  *scene.AppState  `json:"appState"`
	Version   int64            `json:"version"`
}

// updateMessage relays an authoritative scene state to session peers.
type updateMessage struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"sessionId"`
	Elements  []*scene.Element `json:"elements"`
	AppState  *scene.AppState  `json:"appState"`
	Version   int64            `json:"version"`
}

// addElementsMessage delivers a skeleton batch for client-side expansion.
type addElementsMessage struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"sessionId"`
	BatchID   string           `json:"batchId"`
	Elements  []*scene.Element `json:"elements"`
}

// convertMessage asks the rendering surface to convert mermaid syntax.
type convertMessage struct {
	Type           MessageType `json:"type"`
	RequestID      string      `json:"requestId"`
	SessionID      string      `json:"sessionId"`
	MermaidDiagram string      `json:"mermaidDiagram"`
	Reset          bool        `json:"reset"`
}

// exportMessage asks the rendering surface to export the scene.
type exportMessage struct {
	Type      MessageType      `json:"type"`
	RequestID string           `json:"requestId"`
	SessionID string           `json:"sessionId"`
	Format    string           `json:"format"`
	Elements  []*scene.Element `json:"elements"`
	AppState  *scene.AppState  `json:"appState"`
}

type pongMessage struct {
	Type MessageType `json:"type"`
}

func newInitMessage(snap *scene.Snapshot) *initMessage {
	return &initMessage{
		Type:      MsgInit,
		SessionID: snap.ID,
		Elements:  snap.Elements,
		AppState:  snap.AppState,
		Version:   snap.Version,
	}
}

func newUpdateMessage(snap *scene.Snapshot) *updateMessage {
	return &updateMessage{
		Type:      MsgUpdate,
		SessionID: snap.ID,
		Elements:  snap.Elements,
		AppState:  snap.AppState,
		Version:   snap.Version,
	}
}

// decodeEnvelope parses an inbound frame. It returns false for anything
// that is not a JSON object with a type discriminant.
func decodeEnvelope(data []byte) (*envelope, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	if env.Type == "" {
		return nil, false
	}
	return &env, true
}
