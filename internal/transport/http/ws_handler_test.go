package http

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketRecordFlow(t *testing.T) {
	server := newTestServer(t)
	id := startSession(t, server)

	u := "ws" + server.URL[len("http"):] + "/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current ranking first.
	_, payload := readNext(conn, t, "ranking")
	if entries, _ := payload["entries"].([]any); len(entries) != 3 {
		t.Fatalf("expected 3 ranked students, got %v", payload["entries"])
	}

	record := map[string]any{
		"type": "record",
		"payload": map[string]any{
			"studentName": "Dana",
			"score":       97,
			"subject":     "History",
		},
	}
	if err := conn.WriteJSON(record); err != nil {
		t.Fatalf("write record: %v", err)
	}

	addedSeen := false
	rankingSeen := false
	for i := 0; i < 3 && !(addedSeen && rankingSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "recordAdded":
			addedSeen = payload["studentName"] == "Dana"
		case "ranking":
			entries, _ := payload["entries"].([]any)
			rankingSeen = len(entries) == 4
		}
	}
	if !addedSeen || !rankingSeen {
		t.Fatalf("expected recordAdded and ranking, got recordAdded=%v ranking=%v", addedSeen, rankingSeen)
	}

	if err := conn.WriteJSON(map[string]any{"type": "record", "payload": map[string]any{"studentName": "Dana"}}); err != nil {
		t.Fatalf("write invalid record: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if fields, _ := payload["fields"].(map[string]any); fields["score"] == nil {
		t.Fatalf("expected score field error, got %v", payload)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	server := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
