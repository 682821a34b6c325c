package channel

import (
	"encoding/json"
	"fmt"

	"lmsync/internal/domain"
)

// frame is the JSON envelope for every websocket message in either
// direction. AckID links an "ack" reply to the emit that requested it.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ack_id,omitempty"`
}

const ackEvent = "ack"

type messageUpdatedPayload struct {
	ID     int64 `json:"id"`
	IsRead bool  `json:"is_read"`
}

type bulkUpdatedPayload struct {
	IDs    []int64 `json:"ids"`
	IsRead bool    `json:"is_read"`
}

type ackPayload struct {
	UnreadCount int `json:"unread_count"`
}

// decodeServerEvent maps an inbound frame to its typed variant.
// Unknown event names return an error; the reader logs and skips them
// so a newer server never breaks an older client.
func decodeServerEvent(f frame) (domain.ServerEvent, error) {
	switch f.Event {
	case domain.EvMessageNew:
		var m domain.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return domain.MessageNew{Message: m}, nil

	case domain.EvMessageUpdated:
		var p messageUpdatedPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return domain.MessageUpdated{ID: p.ID, IsRead: p.IsRead}, nil

	case domain.EvMessageBulkUpdated:
		var p bulkUpdatedPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return domain.MessageBulkUpdated{IDs: p.IDs, IsRead: p.IsRead}, nil

	case domain.EvThreadsUpdate:
		return domain.ThreadsUpdate{}, nil

	case domain.EvUnreadUpdate:
		return domain.UnreadUpdate{}, nil
	}
	return nil, fmt.Errorf("unknown server event %q", f.Event)
}

// encodeClientEvent maps an outbound variant to its wire frame. ackID
// is zero for fire-and-forget events.
func encodeClientEvent(ev domain.ClientEvent, ackID int64) (frame, error) {
	switch e := ev.(type) {
	case domain.SendMessage:
		data, err := json.Marshal(map[string]any{
			"to_user_id": e.ToUserID,
			"content":    e.Content,
		})
		if err != nil {
			return frame{}, err
		}
		return frame{Event: domain.EvMessageSend, Data: data}, nil

	case domain.ReadAll:
		data, err := json.Marshal(map[string]any{"partner_id": e.PartnerID})
		if err != nil {
			return frame{}, err
		}
		return frame{Event: domain.EvMessageReadAll, Data: data}, nil

	case domain.UnreadCount:
		return frame{Event: domain.EvUnreadCount, AckID: ackID}, nil
	}
	return frame{}, fmt.Errorf("unknown client event %T", ev)
}
