package handler

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestInboundDecodesPayloadAndData(t *testing.T) {
	var msg Inbound
	raw := `{"type":"stroke_add","payload":{"points":[[0,1],[2,3]],"color":"#000"}}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != "stroke_add" {
		t.Errorf("Type = %q, want stroke_add", msg.Type)
	}
	if len(msg.Payload) == 0 {
		t.Error("payload was not captured")
	}
	if len(msg.Data) != 0 {
		t.Error("data should be empty for a draw frame")
	}

	var cursor Inbound
	raw = `{"type":"cursor_move","data":{"x":10,"y":20}}`
	if err := json.Unmarshal([]byte(raw), &cursor); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if cursor.Type != "cursor_move" || len(cursor.Data) == 0 {
		t.Errorf("cursor frame decoded as %+v", cursor)
	}
}

func TestInboundRejectsMalformedJSON(t *testing.T) {
	var msg Inbound
	if err := json.Unmarshal([]byte(`{"type":`), &msg); err == nil {
		t.Error("expected an error for truncated JSON")
	}
}

func TestGenerateRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := generateRoomCode()
		if len(code) != 6 {
			t.Fatalf("code %q has length %d, want 6", code, len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(codeCharset, r) {
				t.Fatalf("code %q contains %q outside the charset", code, r)
			}
		}
		seen[code] = true
	}
	// 32^6 combinations: 100 draws colliding down to a handful would
	// mean the generator is broken.
	if len(seen) < 90 {
		t.Errorf("only %d distinct codes out of 100", len(seen))
	}
}
