package channel

import (
	"encoding/json"
	"testing"
	"time"

	"lmsync/internal/domain"
)

func TestDecodeServerEvent_MessageNew(t *testing.T) {
	raw := []byte(`{"event":"message:new","data":{"id":101,"from_user_id":42,"to_user_id":1,"content":"hi","created_at":"2026-02-10T09:30:00Z","is_read":false}}`)
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatal(err)
	}

	ev, err := decodeServerEvent(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mn, ok := ev.(domain.MessageNew)
	if !ok {
		t.Fatalf("got %T, want MessageNew", ev)
	}
	if mn.Message.ID != 101 || mn.Message.FromUserID != 42 {
		t.Errorf("message = %+v", mn.Message)
	}
	want := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	if !mn.Message.CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", mn.Message.CreatedAt, want)
	}
}

func TestDecodeServerEvent_BulkUpdated(t *testing.T) {
	f := frame{Event: domain.EvMessageBulkUpdated, Data: []byte(`{"ids":[1,2,3],"is_read":true}`)}

	ev, err := decodeServerEvent(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bu := ev.(domain.MessageBulkUpdated)
	if len(bu.IDs) != 3 || !bu.IsRead {
		t.Errorf("event = %+v", bu)
	}
}

func TestDecodeServerEvent_Signals(t *testing.T) {
	for _, name := range []string{domain.EvThreadsUpdate, domain.EvUnreadUpdate} {
		ev, err := decodeServerEvent(frame{Event: name})
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		switch ev.(type) {
		case domain.ThreadsUpdate, domain.UnreadUpdate:
		default:
			t.Errorf("%s decoded to %T", name, ev)
		}
	}
}

func TestDecodeServerEvent_Unknown(t *testing.T) {
	if _, err := decodeServerEvent(frame{Event: "presence:update"}); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestEncodeClientEvent_SendMessage(t *testing.T) {
	f, err := encodeClientEvent(domain.SendMessage{ToUserID: 42, Content: "hello"}, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if f.Event != domain.EvMessageSend {
		t.Errorf("event = %q", f.Event)
	}
	var data map[string]any
	json.Unmarshal(f.Data, &data)
	if data["to_user_id"].(float64) != 42 || data["content"] != "hello" {
		t.Errorf("data = %v", data)
	}
}

func TestEncodeClientEvent_ReadAll(t *testing.T) {
	f, err := encodeClientEvent(domain.ReadAll{PartnerID: 7}, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if f.Event != domain.EvMessageReadAll {
		t.Errorf("event = %q", f.Event)
	}
}

func TestEncodeClientEvent_UnreadCountCarriesAckID(t *testing.T) {
	f, err := encodeClientEvent(domain.UnreadCount{}, 9)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if f.Event != domain.EvUnreadCount || f.AckID != 9 {
		t.Errorf("frame = %+v", f)
	}
}
