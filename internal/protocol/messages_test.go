package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Encoding outbound events
// ---------------------------------------------------------------------------

func TestEncode_JoinRoom(t *testing.T) {
	data, err := Encode(TypeJoinRoom, JoinRoomEvent{RoomID: "r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeJoinRoom {
		t.Errorf("expected type %q, got %v", TypeJoinRoom, result["type"])
	}
	if result["room_id"] != "r1" {
		t.Errorf("expected room_id %q, got %v", "r1", result["room_id"])
	}
}

func TestEncode_SendMessage(t *testing.T) {
	data, err := Encode(TypeSendMessage, MessageEvent{
		ID:     "id-1",
		Room:   "r1",
		Author: "Alice",
		Body:   "hi",
		SentAt: "14:05",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	want := map[string]string{
		"type":    TypeSendMessage,
		"id":      "id-1",
		"room":    "r1",
		"author":  "Alice",
		"message": "hi",
		"time":    "14:05",
	}
	for k, v := range want {
		if result[k] != v {
			t.Errorf("field %q: expected %q, got %v", k, v, result[k])
		}
	}
}

func TestEncode_TypingCarriesUserAndRoom(t *testing.T) {
	data, err := Encode(TypeTyping, TypingEvent{Username: "Alice", RoomID: "r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeTyping {
		t.Fatalf("expected type %q, got %q", TypeTyping, env.Type)
	}

	var ev TypingEvent
	if err := json.Unmarshal(env.Raw, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Username != "Alice" || ev.RoomID != "r1" {
		t.Errorf("unexpected typing payload: %+v", ev)
	}
}

func TestEncode_NilPayload(t *testing.T) {
	data, err := Encode(TypeJoinRoom, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"type":"join_room"}` {
		t.Errorf("unexpected frame: %s", data)
	}
}

func TestEncode_NonObjectPayload(t *testing.T) {
	if _, err := Encode(TypeJoinRoom, "r1"); err == nil {
		t.Fatal("expected error for non-object payload, got nil")
	}
}

func TestEncode_EmptyType(t *testing.T) {
	if _, err := Encode("", JoinRoomEvent{RoomID: "r1"}); err == nil {
		t.Fatal("expected error for empty type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Decoding inbound events
// ---------------------------------------------------------------------------

func TestDecodeMessage_ReceiveMessage(t *testing.T) {
	input := []byte(`{"type":"receive_message","id":"m-1","room":"r1","author":"Bob","message":"hello","time":"09:30"}`)

	env, err := Decode(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != TypeReceiveMessage {
		t.Fatalf("expected type %q, got %q", TypeReceiveMessage, env.Type)
	}

	msg, err := DecodeMessage(env.Raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "m-1" || msg.Room != "r1" || msg.Author != "Bob" {
		t.Errorf("unexpected message header: %+v", msg)
	}
	if msg.Body != "hello" {
		t.Errorf("expected body %q, got %q", "hello", msg.Body)
	}
	if msg.SentAt != "09:30" {
		t.Errorf("expected time %q, got %q", "09:30", msg.SentAt)
	}
}

func TestDecodeUserTyping(t *testing.T) {
	input := []byte(`{"type":"user_typing","sender":"Alice"}`)

	ev, err := DecodeUserTyping(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Sender != "Alice" {
		t.Errorf("expected sender %q, got %q", "Alice", ev.Sender)
	}
}

func TestDecodeMessage_WrongFieldType(t *testing.T) {
	if _, err := DecodeMessage([]byte(`{"type":"receive_message","id":42}`)); err == nil {
		t.Fatal("expected error for numeric id, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestEnvelope_KeepsRawFrame(t *testing.T) {
	input := []byte(`{"type":"user_typing","sender":"Bob"}`)
	env, err := Decode(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(env.Raw) != string(input) {
		t.Errorf("expected raw frame to be preserved, got %s", env.Raw)
	}
}
