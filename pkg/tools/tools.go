// Package tools exposes the canvas operations as MCP tools. Every
// failure is converted into an isError text result at this boundary so
// the MCP transport never sees a protocol-level error for a domain
// problem.
package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/canvas"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/exportstore"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/scene"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service binds the tool handlers to the session store and the canvas
// server. Exports is optional; when nil, exported artifacts are returned
// inline only.
type Service struct {
	store   *store.Store
	canvas  *canvas.Server
	exports *exportstore.Store
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewService wires a Service. logger may be nil.
func NewService(st *store.Store, cv *canvas.Server, exports *exportstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		canvas:  cv,
		exports: exports,
		logger:  logger.With("component", "tools"),
		tracer:  otel.Tracer("excalidraw-mcp/tools"),
	}
}

// Register adds every tool to the MCP server.
func (s *Service) Register(srv *server.MCPServer) {
	srv.AddTool(mcp.NewTool("add_elements",
		mcp.WithDescription("Add new elements to the diagram. Elements are normalized (ids, default sizes, label synthesis) before being committed."),
		mcp.WithString("sessionId", mcp.Description("Target session id; omit for the default session")),
		mcp.WithArray("elements", mcp.Required(), mcp.Description("Element skeletons to add")),
	), s.traced("add_elements", s.handleAddElements))

	srv.AddTool(mcp.NewTool("update_element",
		mcp.WithDescription("Shallow-merge properties into an existing element by id. Setting text on a shape becomes its label."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Element id")),
		mcp.WithString("sessionId", mcp.Description("Target session id")),
		mcp.WithObject("properties", mcp.Required(), mcp.Description("Properties to merge; a null value removes the property")),
	), s.traced("update_element", s.handleUpdateElement))

	srv.AddTool(mcp.NewTool("delete_element",
		mcp.WithDescription("Delete an element by id. The element is tombstoned so peers converge; it no longer appears in the scene."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Element id")),
		mcp.WithString("sessionId", mcp.Description("Target session id")),
	), s.traced("delete_element", s.handleDeleteElement))

	srv.AddTool(mcp.NewTool("get_scene",
		mcp.WithDescription("Read the current scene: live elements, app state, version, and per-type counts."),
		mcp.WithString("sessionId", mcp.Description("Target session id")),
	), s.traced("get_scene", s.handleGetScene))

	srv.AddTool(mcp.NewTool("convert_mermaid",
		mcp.WithDescription("Convert mermaid diagram syntax into elements via a connected canvas client."),
		mcp.WithString("mermaidDiagram", mcp.Required(), mcp.Description("Mermaid source text")),
		mcp.WithString("sessionId", mcp.Description("Target session id")),
		mcp.WithBoolean("reset", mcp.Description("Clear the scene before inserting the converted elements")),
	), s.traced("convert_mermaid", s.handleConvertMermaid))

	srv.AddTool(mcp.NewTool("export_diagram",
		mcp.WithDescription("Export the diagram as png or svg via a connected canvas client."),
		mcp.WithString("format", mcp.Required(), mcp.Description("Export format: png or svg")),
		mcp.WithString("sessionId", mcp.Description("Target session id")),
	), s.traced("export_diagram", s.handleExportDiagram))

	srv.AddTool(mcp.NewTool("create_diagram",
		mcp.WithDescription("Create a new diagram session, optionally with a background color."),
		mcp.WithString("sessionId", mcp.Description("Session id; generated when omitted")),
		mcp.WithString("backgroundColor", mcp.Description("Initial canvas background color")),
	), s.traced("create_diagram", s.handleCreateDiagram))

	srv.AddTool(mcp.NewTool("clear_diagram",
		mcp.WithDescription("Remove every element from the diagram. The session and its connections survive."),
		mcp.WithString("sessionId", mcp.Description("Target session id")),
	), s.traced("clear_diagram", s.handleClearDiagram))

	srv.AddTool(mcp.NewTool("delete_diagram",
		mcp.WithDescription("Delete a diagram session entirely."),
		mcp.WithString("sessionId", mcp.Required(), mcp.Description("Session id to delete")),
	), s.traced("delete_diagram", s.handleDeleteDiagram))

	srv.AddTool(mcp.NewTool("list_diagrams",
		mcp.WithDescription("List all diagram sessions with element counts and versions."),
	), s.traced("list_diagrams", s.handleListDiagrams))
}

// traced wraps a handler in an otel span and converts panics on the
// result path into error results rather than transport failures.
func (s *Service) traced(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := s.tracer.Start(ctx, "tools."+name)
		defer span.End()

		res, err := h(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res != nil && res.IsError {
			span.SetStatus(codes.Error, "tool error result")
		}
		return res, nil
	}
}

// session resolves the target scene for a tool call, auto-creating it.
func (s *Service) session(req mcp.CallToolRequest) (*scene.Scene, error) {
	return s.store.Get(req.GetString("sessionId", ""), true)
}

// decodeElements converts the raw arguments array into elements via a
// JSON round trip, which applies the same field mapping as the wire.
func decodeElements(raw any) ([]*scene.Element, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid elements payload: %w", err)
	}
	var els []*scene.Element
	if err := json.Unmarshal(data, &els); err != nil {
		return nil, fmt.Errorf("invalid elements payload: %w", err)
	}
	if len(els) == 0 {
		return nil, errors.New("elements must be a non-empty array")
	}
	for _, el := range els {
		if el == nil || !el.Type.Valid() {
			return nil, fmt.Errorf("unsupported element type")
		}
	}
	return els, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Service) handleAddElements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["elements"]
	if !ok {
		return nil, errors.New("elements is required")
	}
	els, err := decodeElements(raw)
	if err != nil {
		return nil, err
	}

	sc, err := s.session(req)
	if err != nil {
		return nil, err
	}

	// A rendering surface must be present before anything is committed;
	// without one the batch would be invisible and the caller would have
	// no signal that nothing was drawn.
	if err := s.canvas.WaitForClient(ctx, sc.ID); err != nil {
		if errors.Is(err, canvas.ErrNoActiveClient) {
			return nil, errors.New("no canvas client is connected; open the canvas page and retry")
		}
		return nil, err
	}

	normalized := scene.NormalizeBatch(els)
	sc.AddElements(normalized)
	s.store.Update(sc)
	batch := s.canvas.StageBatch(sc.ID, normalized)

	ids := make([]string, len(normalized))
	for i, el := range normalized {
		ids[i] = el.ID
	}
	return jsonResult(map[string]any{
		"sessionId": sc.ID,
		"batchId":   batch.ID,
		"added":     ids,
		"count":     len(ids),
		"version":   sc.Version(),
	})
}

func (s *Service) handleUpdateElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, err
	}
	props, ok := req.GetArguments()["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil, errors.New("properties must be a non-empty object")
	}

	sc, err := s.session(req)
	if err != nil {
		return nil, err
	}

	// Free text set on a shape becomes its label; prior label fields
	// survive, alignment defaults to centered.
	if text, ok := props["text"].(string); ok {
		if el, found := sc.Element(id); found && el.Type != scene.TypeText {
			delete(props, "text")
			label := scene.ExpandLabel(el.Label, text)
			labelJSON, err := json.Marshal(label)
			if err != nil {
				return nil, err
			}
			var labelMap map[string]any
			if err := json.Unmarshal(labelJSON, &labelMap); err != nil {
				return nil, err
			}
			props["label"] = labelMap
		}
	}

	el, err := sc.MergeElement(id, props)
	if err != nil {
		return nil, err
	}
	s.store.Update(sc)
	s.canvas.BroadcastScene(sc, nil)

	return jsonResult(map[string]any{
		"sessionId": sc.ID,
		"element":   el,
		"version":   sc.Version(),
	})
}

func (s *Service) handleDeleteElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, err
	}
	sc, err := s.session(req)
	if err != nil {
		return nil, err
	}

	if err := sc.DeleteElement(id); err != nil {
		return nil, err
	}
	s.store.Update(sc)
	s.canvas.BroadcastScene(sc, nil)

	return jsonResult(map[string]any{
		"sessionId": sc.ID,
		"deleted":   id,
		"version":   sc.Version(),
	})
}

func (s *Service) handleGetScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.session(req)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for typ, n := range sc.TypeCounts() {
		counts[string(typ)] = n
	}
	snap := sc.Snapshot()
	return jsonResult(map[string]any{
		"sessionId":   sc.ID,
		"elements":    sc.ActiveElements(),
		"appState":    snap.AppState,
		"version":     snap.Version,
		"lastUpdated": snap.LastUpdated,
		"counts":      counts,
	})
}

func (s *Service) handleConvertMermaid(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diagram, err := req.RequireString("mermaidDiagram")
	if err != nil {
		return nil, err
	}
	sc, err := s.session(req)
	if err != nil {
		return nil, err
	}
	reset := req.GetBool("reset", false)

	result, err := s.canvas.RequestConversion(ctx, sc.ID, diagram, reset)
	if err != nil {
		return nil, classifyConvertError(err)
	}

	return jsonResult(map[string]any{
		"sessionId":    result.SessionID,
		"elementCount": result.ElementCount,
		"reset":        reset,
	})
}

func (s *Service) handleExportDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return nil, err
	}
	if format != "png" && format != "svg" {
		return nil, fmt.Errorf("unsupported format %q, expected png or svg", format)
	}
	sc, err := s.session(req)
	if err != nil {
		return nil, err
	}

	data, err := s.canvas.RequestExport(ctx, sc, format)
	if err != nil {
		switch {
		case errors.Is(err, canvas.ErrNoActiveClient):
			return nil, errors.New("no canvas client is connected; open the canvas page and retry")
		case errors.Is(err, canvas.ErrExportTimeout):
			return nil, errors.New("export timed out waiting for the canvas client")
		default:
			return nil, err
		}
	}

	out := map[string]any{
		"sessionId": sc.ID,
		"format":    format,
		"data":      data,
	}
	if s.exports != nil {
		decoded, decErr := base64.StdEncoding.DecodeString(data)
		if decErr != nil {
			s.logger.Warn("export payload is not valid base64, skipping upload", "error", decErr)
		} else if key, upErr := s.exports.Put(ctx, sc.ID, format, decoded); upErr != nil {
			s.logger.Error("export upload failed", "error", upErr)
		} else {
			out["s3Key"] = key
		}
	}
	return jsonResult(out)
}

func (s *Service) handleCreateDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.store.Create(req.GetString("sessionId", ""))
	if err != nil {
		return nil, err
	}
	if bg := req.GetString("backgroundColor", ""); bg != "" {
		sc.SetBackgroundColor(bg)
		s.store.Update(sc)
	}
	return jsonResult(map[string]any{
		"sessionId": sc.ID,
		"version":   sc.Version(),
	})
}

func (s *Service) handleClearDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.session(req)
	if err != nil {
		return nil, err
	}
	sc.Clear()
	s.store.Update(sc)
	s.canvas.BroadcastScene(sc, nil)

	return jsonResult(map[string]any{
		"sessionId": sc.ID,
		"version":   sc.Version(),
	})
}

func (s *Service) handleDeleteDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sessionId")
	if err != nil {
		return nil, err
	}

	existed := s.store.Delete(id)
	s.canvas.DropSession(id)
	if !existed {
		return nil, fmt.Errorf("session %q not found", id)
	}
	return jsonResult(map[string]any{
		"sessionId": id,
		"deleted":   true,
	})
}

func (s *Service) handleListDiagrams(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"sessions": s.store.List(),
	})
}
