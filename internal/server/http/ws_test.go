package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
)

func TestStreamWebSocketEndToEnd(t *testing.T) {
	s, svc := newTestServer(t)
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	doJSON(t, s, http.MethodPost, "/v1/sessions/register", `{"sessionId":"s1"}`)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws?session=s1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	var frame struct {
		Event *event.Event   `json:"event"`
		Batch []*event.Event `json:"batch"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read connected marker: %v", err)
	}
	if frame.Event == nil || frame.Event.Type != event.TypeWorkflowStarted {
		t.Fatalf("connected marker = %+v", frame)
	}

	published := event.New("s1", event.TypeAgentMessage)
	published.Message = "hello"
	if err := svc.Publish(context.Background(), published); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if frame.Event == nil || frame.Event.ID != published.ID || frame.Event.Message != "hello" {
		t.Fatalf("event frame = %+v", frame.Event)
	}

	if w := doJSON(t, s, http.MethodPost, "/v1/sessions/close", `{"sessionId":"s1","reason":"done"}`); w.Code != http.StatusNoContent {
		t.Fatalf("close: %d", w.Code)
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read terminal: %v", err)
	}
	if frame.Event == nil || frame.Event.Type != event.TypeWorkflowCompleted {
		t.Fatalf("terminal frame = %+v", frame.Event)
	}
}

func TestWebSocketRequiresSession(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response = %+v", resp)
	}
}
