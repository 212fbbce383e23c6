package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/canvas"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/scene"
	"github.com/Scofieldfree/excalidraw-mcp/pkg/store"
	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	svc, st, _ := newTestServiceWithCanvas(t)
	return svc, st
}

func newTestServiceWithCanvas(t *testing.T) (*Service, *store.Store, *httptest.Server) {
	t.Helper()

	st := store.New(nil, testLogger())
	t.Cleanup(st.Shutdown)

	config := canvas.DefaultConfig()
	config.ClientWaitTimeout = 50 * time.Millisecond
	config.ClientWaitInterval = 10 * time.Millisecond
	cv := canvas.NewServer(st, config, testLogger(), canvas.NewMetrics(prometheus.NewRegistry()))
	ts := httptest.NewServer(cv.Handler())
	t.Cleanup(ts.Close)

	return NewService(st, cv, nil, testLogger()), st, ts
}

// connectClient attaches a canvas client to the session and waits for its
// init frame, so the connection is registered before the caller proceeds.
func connectClient(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?sessionId=" + sessionID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatalf("waiting for init: %v", err)
	}
	return ws
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()

	if len(res.Content) == 0 {
		t.Fatal("empty result content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("result not JSON: %v\n%s", err, text.Text)
	}
	return out
}

func TestAddElementsNormalizes(t *testing.T) {
	svc, st, ts := newTestServiceWithCanvas(t)
	connectClient(t, ts, "room-1")

	res, err := svc.handleAddElements(context.Background(), callReq("add_elements", map[string]any{
		"sessionId": "room-1",
		"elements": []any{
			map[string]any{"type": "rectangle", "x": 10, "y": 20},
			map[string]any{"type": "text", "text": "hello", "x": 0, "y": 0},
		},
	}))
	if err != nil {
		t.Fatalf("add_elements: %v", err)
	}

	out := resultJSON(t, res)
	if out["count"] != float64(2) {
		t.Fatalf("count = %v", out["count"])
	}
	if out["batchId"] == "" {
		t.Fatal("missing batchId")
	}

	sc, _ := st.Get("room-1", false)
	els := sc.ActiveElements()
	if len(els) != 2 {
		t.Fatalf("committed = %d", len(els))
	}
	for _, el := range els {
		if el.ID == "" {
			t.Fatal("element left without id")
		}
		switch el.Type {
		case scene.TypeRectangle:
			if el.Width != 100 || el.Height != 100 {
				t.Fatalf("rectangle size = %gx%g, want defaults", el.Width, el.Height)
			}
		case scene.TypeText:
			if el.Width != 70 || el.Height != 25 {
				t.Fatalf("text size = %gx%g", el.Width, el.Height)
			}
		}
	}
}

func TestAddElementsFailsWithoutClient(t *testing.T) {
	svc, st := newTestService(t)

	_, err := svc.handleAddElements(context.Background(), callReq("add_elements", map[string]any{
		"sessionId": "empty-room",
		"elements":  []any{map[string]any{"type": "rectangle"}},
	}))
	if err == nil || !strings.Contains(err.Error(), "no canvas client") {
		t.Fatalf("err = %v, want no-client message", err)
	}

	// The failed call must not commit or stage anything.
	sc, getErr := st.Get("empty-room", false)
	if getErr != nil {
		t.Fatalf("session missing: %v", getErr)
	}
	if sc.ElementCount() != 0 {
		t.Fatalf("elements committed despite failure: %d", sc.ElementCount())
	}
	if sc.Version() != 0 {
		t.Fatalf("version bumped despite failure: %d", sc.Version())
	}
}

func TestAddElementsRejectsBadPayloads(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.handleAddElements(ctx, callReq("add_elements", map[string]any{
		"elements": []any{},
	})); err == nil {
		t.Fatal("empty array accepted")
	}

	if _, err := svc.handleAddElements(ctx, callReq("add_elements", map[string]any{
		"elements": []any{map[string]any{"type": "hexagon"}},
	})); err == nil {
		t.Fatal("unknown element type accepted")
	}

	if _, err := svc.handleAddElements(ctx, callReq("add_elements", map[string]any{})); err == nil {
		t.Fatal("missing elements accepted")
	}
}

func TestUpdateElementMerge(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sc, _ := st.Get("room-1", true)
	sc.AddElements([]*scene.Element{{ID: "e1", Type: scene.TypeRectangle, X: 1, Y: 2, Width: 100, Height: 100}})

	res, err := svc.handleUpdateElement(ctx, callReq("update_element", map[string]any{
		"sessionId":  "room-1",
		"id":         "e1",
		"properties": map[string]any{"x": 50.0, "strokeColor": "#ff0000"},
	}))
	if err != nil {
		t.Fatalf("update_element: %v", err)
	}
	_ = res

	el, _ := sc.Element("e1")
	if el.X != 50 || el.StrokeColor != "#ff0000" {
		t.Fatalf("merge result: x=%g stroke=%q", el.X, el.StrokeColor)
	}
	if el.Y != 2 {
		t.Fatal("untouched property lost in merge")
	}
}

func TestUpdateElementTextBecomesLabel(t *testing.T) {
	svc, st := newTestService(t)

	sc, _ := st.Get("room-1", true)
	sc.AddElements([]*scene.Element{{ID: "e1", Type: scene.TypeRectangle, Width: 100, Height: 100}})

	_, err := svc.handleUpdateElement(context.Background(), callReq("update_element", map[string]any{
		"sessionId":  "room-1",
		"id":         "e1",
		"properties": map[string]any{"text": "node label"},
	}))
	if err != nil {
		t.Fatalf("update_element: %v", err)
	}

	el, _ := sc.Element("e1")
	if el.Text != "" {
		t.Fatalf("free text stored on shape: %q", el.Text)
	}
	if el.Label == nil || el.Label.Text != "node label" {
		t.Fatalf("label = %+v", el.Label)
	}
	if el.Label.TextAlign != "center" || el.Label.VerticalAlign != "middle" {
		t.Fatalf("label alignment = %q/%q", el.Label.TextAlign, el.Label.VerticalAlign)
	}
}

func TestUpdateElementNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.handleUpdateElement(context.Background(), callReq("update_element", map[string]any{
		"id":         "ghost",
		"properties": map[string]any{"x": 1.0},
	}))
	if !errors.Is(err, scene.ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound", err)
	}
}

func TestDeleteElementTombstones(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sc, _ := st.Get("room-1", true)
	sc.AddElements([]*scene.Element{{ID: "e1", Type: scene.TypeRectangle}})

	if _, err := svc.handleDeleteElement(ctx, callReq("delete_element", map[string]any{
		"sessionId": "room-1",
		"id":        "e1",
	})); err != nil {
		t.Fatalf("delete_element: %v", err)
	}

	if got := len(sc.ActiveElements()); got != 0 {
		t.Fatalf("active elements = %d after delete", got)
	}
	// The tombstone remains addressable for convergence.
	el, ok := sc.Element("e1")
	if !ok || !el.IsDeleted {
		t.Fatalf("tombstone missing: %+v", el)
	}

	if _, err := svc.handleDeleteElement(ctx, callReq("delete_element", map[string]any{
		"sessionId": "room-1",
		"id":        "ghost",
	})); !errors.Is(err, scene.ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound", err)
	}
}

func TestGetSceneCounts(t *testing.T) {
	svc, st := newTestService(t)

	sc, _ := st.Get("room-1", true)
	sc.AddElements([]*scene.Element{
		{ID: "r1", Type: scene.TypeRectangle},
		{ID: "r2", Type: scene.TypeRectangle},
		{ID: "a1", Type: scene.TypeArrow, Points: []scene.Point{{0, 0}, {10, 10}}},
	})
	sc.DeleteElement("r2")

	res, err := svc.handleGetScene(context.Background(), callReq("get_scene", map[string]any{
		"sessionId": "room-1",
	}))
	if err != nil {
		t.Fatalf("get_scene: %v", err)
	}

	out := resultJSON(t, res)
	counts, _ := out["counts"].(map[string]any)
	if counts["rectangle"] != float64(1) || counts["arrow"] != float64(1) {
		t.Fatalf("counts = %v", counts)
	}
	els, _ := out["elements"].([]any)
	if len(els) != 2 {
		t.Fatalf("elements = %d, tombstone leaked", len(els))
	}
}

func TestDiagramLifecycle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.handleCreateDiagram(ctx, callReq("create_diagram", map[string]any{
		"sessionId":       "proj-1",
		"backgroundColor": "#202020",
	}))
	if err != nil {
		t.Fatalf("create_diagram: %v", err)
	}
	out := resultJSON(t, res)
	if out["sessionId"] != "proj-1" {
		t.Fatalf("sessionId = %v", out["sessionId"])
	}
	// Read the color back through get_scene, the user-visible surface.
	sceneRes, err := svc.handleGetScene(ctx, callReq("get_scene", map[string]any{
		"sessionId": "proj-1",
	}))
	if err != nil {
		t.Fatalf("get_scene: %v", err)
	}
	sceneOut := resultJSON(t, sceneRes)
	appState, _ := sceneOut["appState"].(map[string]any)
	if appState["viewBackgroundColor"] != "#202020" {
		t.Fatalf("appState background = %v", appState["viewBackgroundColor"])
	}

	sc, _ := st.Get("proj-1", false)

	sc.AddElements([]*scene.Element{{ID: "e1", Type: scene.TypeRectangle}})
	before := sc.Version()
	if _, err := svc.handleClearDiagram(ctx, callReq("clear_diagram", map[string]any{
		"sessionId": "proj-1",
	})); err != nil {
		t.Fatalf("clear_diagram: %v", err)
	}
	if sc.ElementCount() != 0 {
		t.Fatal("clear left elements behind")
	}
	if sc.Version() <= before {
		t.Fatal("clear did not bump version")
	}

	listRes, err := svc.handleListDiagrams(ctx, callReq("list_diagrams", nil))
	if err != nil {
		t.Fatalf("list_diagrams: %v", err)
	}
	listOut := resultJSON(t, listRes)
	sessions, _ := listOut["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d", len(sessions))
	}

	if _, err := svc.handleDeleteDiagram(ctx, callReq("delete_diagram", map[string]any{
		"sessionId": "proj-1",
	})); err != nil {
		t.Fatalf("delete_diagram: %v", err)
	}
	if _, err := st.Get("proj-1", false); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("session survived delete: %v", err)
	}

	if _, err := svc.handleDeleteDiagram(ctx, callReq("delete_diagram", map[string]any{
		"sessionId": "proj-1",
	})); err == nil {
		t.Fatal("deleting a missing session succeeded")
	}
}

func TestExportDiagramNoClient(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.handleExportDiagram(context.Background(), callReq("export_diagram", map[string]any{
		"format": "png",
	}))
	if err == nil || !strings.Contains(err.Error(), "no canvas client") {
		t.Fatalf("err = %v, want no-client message", err)
	}

	_, err = svc.handleExportDiagram(context.Background(), callReq("export_diagram", map[string]any{
		"format": "gif",
	}))
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("err = %v, want unsupported format", err)
	}
}

func TestTracedConvertsErrorsToResults(t *testing.T) {
	svc, _ := newTestService(t)

	h := svc.traced("update_element", svc.handleUpdateElement)
	res, err := h(context.Background(), callReq("update_element", map[string]any{
		"id":         "ghost",
		"properties": map[string]any{"x": 1.0},
	}))
	if err != nil {
		t.Fatalf("traced handler leaked transport error: %v", err)
	}
	if res == nil || !res.IsError {
		t.Fatal("domain error not converted to isError result")
	}
}

func TestClassifyConvertError(t *testing.T) {
	tests := []struct {
		in   error
		want string
	}{
		{canvas.ErrConvertTimeout, "timed out"},
		{errors.New("Parse error on line 2"), "syntax error"},
		{errors.New("lexical error: unrecognized text"), "syntax error"},
		{errors.New("something exploded"), "conversion failed"},
	}
	for _, tt := range tests {
		got := classifyConvertError(tt.in)
		if !strings.Contains(got.Error(), tt.want) {
			t.Errorf("classify(%v) = %q, want substring %q", tt.in, got, tt.want)
		}
	}
}
