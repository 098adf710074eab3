package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: initial_state carries every snapshot section
// ---------------------------------------------------------------------------

func TestParseServerEvent_InitialState(t *testing.T) {
	input := []byte(`{
		"type": "initial_state",
		"user": {"id": 42, "is_service_account": false},
		"access": {"can_access": false, "reason": "outside_window", "message": "Chat opens at 21:00",
		           "window_start": "21:00:00", "window_end": "23:59:00", "time_remaining_seconds": 0},
		"activity": {"college": "State U", "college_id": 7, "active_chats": 3, "waiting_count": 2, "registered_students": 120},
		"queue": {"is_in_queue": true},
		"chat": null
	}`)

	ev, err := ParseServerEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, ok := ev.(InitialState)
	if !ok {
		t.Fatalf("expected InitialState, got %T", ev)
	}
	if st.User.ID != "42" {
		t.Errorf("expected numeric user id decoded as %q, got %q", "42", st.User.ID)
	}
	if st.Access.CanAccess || st.Access.Reason != ReasonOutsideWindow {
		t.Errorf("unexpected access: %+v", st.Access)
	}
	if st.Access.WindowStart != "21:00:00" || st.Access.WindowEnd != "23:59:00" {
		t.Errorf("unexpected window: %s-%s", st.Access.WindowStart, st.Access.WindowEnd)
	}
	if st.Activity.ActiveChats != 3 || st.Activity.WaitingCount != 2 {
		t.Errorf("unexpected activity: %+v", st.Activity)
	}
	if st.Activity.CollegeID != "7" {
		t.Errorf("expected college id %q, got %q", "7", st.Activity.CollegeID)
	}
	if !st.Queue.IsInQueue {
		t.Error("expected is_in_queue=true")
	}
	if st.Chat != nil {
		t.Errorf("expected nil chat, got %+v", st.Chat)
	}
}

// ---------------------------------------------------------------------------
// Test: chat_matched decodes the nested chat
// ---------------------------------------------------------------------------

func TestParseServerEvent_ChatMatched(t *testing.T) {
	input := []byte(`{"type":"chat_matched","chat":{"chat_id":"abc","college":"State U",
		"created_at":"2026-10-18T21:04:00Z","is_active":true,"messages":[]}}`)

	ev, err := ParseServerEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := ev.(ChatMatched)
	if !ok {
		t.Fatalf("expected ChatMatched, got %T", ev)
	}
	if m.Chat.ChatID != "abc" {
		t.Errorf("expected chat_id %q, got %q", "abc", m.Chat.ChatID)
	}
	if !m.Chat.IsActive {
		t.Error("expected is_active=true")
	}
	if m.Chat.Messages == nil || len(m.Chat.Messages) != 0 {
		t.Errorf("expected empty message list, got %v", m.Chat.Messages)
	}
}

// ---------------------------------------------------------------------------
// Test: message fields sit beside the type discriminator
// ---------------------------------------------------------------------------

func TestParseServerEvent_Message(t *testing.T) {
	input := []byte(`{"type":"message","id":"m1","content":"hi","sender_id":"u2",
		"message_type":"text","timestamp":"2026-10-18T21:05:00Z","is_own":false}`)

	ev, err := ParseServerEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := ev.(MessageReceived)
	if !ok {
		t.Fatalf("expected MessageReceived, got %T", ev)
	}
	if m.Message.ID != "m1" || m.Message.Content != "hi" {
		t.Errorf("unexpected message: %+v", m.Message)
	}
	if m.Message.SenderID != "u2" || m.Message.MessageType != MessageText {
		t.Errorf("unexpected sender/type: %+v", m.Message)
	}
	if m.Message.IsOwn {
		t.Error("expected is_own=false")
	}
}

func TestParseServerEvent_TypingAcceptsNumericUser(t *testing.T) {
	ev, err := ParseServerEvent([]byte(`{"type":"typing_start","user_id":17}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts, ok := ev.(TypingStarted)
	if !ok {
		t.Fatalf("expected TypingStarted, got %T", ev)
	}
	if ts.UserID != "17" {
		t.Errorf("expected user id %q, got %q", "17", ts.UserID)
	}
}

func TestParseServerEvent_PayloadlessKinds(t *testing.T) {
	cases := map[string]Event{
		"queue_joined": QueueJoined{},
		"queue_left":   QueueLeft{},
		"chat_left":    ChatLeft{},
		"chat_ended":   ChatEnded{},
		"pong":         Pong{},
	}
	for kind, want := range cases {
		ev, err := ParseServerEvent([]byte(`{"type":"` + kind + `"}`))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", kind, err)
		}
		if ev != want {
			t.Errorf("%s: expected %T, got %T", kind, want, ev)
		}
		if ev.Kind() != kind {
			t.Errorf("%s: Kind() returned %q", kind, ev.Kind())
		}
	}
}

// ---------------------------------------------------------------------------
// Test: unknown kinds fall through without an error
// ---------------------------------------------------------------------------

func TestParseServerEvent_UnknownType(t *testing.T) {
	input := []byte(`{"type":"college_announcement","text":"hello"}`)

	ev, err := ParseServerEvent(input)
	if err != nil {
		t.Fatalf("unknown kinds must not error, got: %v", err)
	}
	u, ok := ev.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", ev)
	}
	if u.Kind() != "college_announcement" {
		t.Errorf("expected kind %q, got %q", "college_announcement", u.Kind())
	}
	if !strings.Contains(string(u.Raw), `"hello"`) {
		t.Errorf("expected raw payload to be kept, got %s", u.Raw)
	}
}

func TestParseServerEvent_InvalidJSON(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParseServerEvent_MissingType(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{"message":"x"}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestParseServerEvent_BadPayload(t *testing.T) {
	_, err := ParseServerEvent([]byte(`{"type":"chat_matched","chat":"abc"}`))
	if err == nil {
		t.Fatal("expected error for mistyped chat payload")
	}
	if !strings.Contains(err.Error(), "chat_matched") {
		t.Errorf("expected error to name the kind, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: outbound actions
// ---------------------------------------------------------------------------

func TestEncodeAction_Minimal(t *testing.T) {
	data, err := EncodeAction(JoinQueue())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"action":"join_queue"}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestEncodeAction_Payloads(t *testing.T) {
	data, err := EncodeAction(SendMessage("hello there"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if m["action"] != ActionSendMessage || m["content"] != "hello there" {
		t.Errorf("unexpected send_message payload: %v", m)
	}
	if _, ok := m["chat_id"]; ok {
		t.Error("chat_id must be omitted from send_message")
	}

	data, err = EncodeAction(JoinChat("abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"action":"join_chat","chat_id":"abc"}` {
		t.Errorf("unexpected join_chat encoding: %s", data)
	}
}

func TestEncodeAction_Empty(t *testing.T) {
	if _, err := EncodeAction(Action{}); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("  hi  "); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateContent("   \n\t"); err == nil {
		t.Error("expected whitespace-only body to be rejected")
	}
	if err := ValidateContent(strings.Repeat("a", MaxContentChars+1)); err == nil {
		t.Error("expected over-long body to be rejected")
	}
}
