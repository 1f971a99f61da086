package feed

import (
	"encoding/json"
	"time"

	"nyordd/internal/notif"
)

// wireNotification is the server's notification shape. Ids are numeric on
// the wire but stringly local, and read state is called is_read there.
type wireNotification struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	Message      string      `json:"message"`
	Type         string      `json:"type"`
	IsRead       bool        `json:"is_read"`
	CreatedAt    string      `json:"created_at"`
	FromUserName string      `json:"from_user_name"`
	Amount       float64     `json:"amount,omitempty"`
}

func (w wireNotification) record() notif.Record {
	created, err := time.Parse(time.RFC3339, w.CreatedAt)
	if err != nil {
		// Backend timestamps are naive isoformat without a zone.
		created, err = time.Parse("2006-01-02T15:04:05", w.CreatedAt)
	}
	if err != nil {
		created = time.Now().UTC()
	}
	return notif.Record{
		ID:           w.ID.String(),
		Category:     notif.CategoryOf(w.Type),
		Type:         w.Type,
		Title:        w.Title,
		Message:      w.Message,
		CreatedAt:    created,
		Read:         w.IsRead,
		FromUserName: w.FromUserName,
		Amount:       w.Amount,
	}
}

// Stats is the server-side notification tally.
type Stats struct {
	TotalCount  int `json:"total_count"`
	UnreadCount int `json:"unread_count"`
}

// wsEnvelope is the stream message envelope. Exactly one payload branch is
// populated depending on Type.
type wsEnvelope struct {
	Type string            `json:"type"`
	Data *wireNotification `json:"data,omitempty"`

	// transaction.success
	TransactionID  json.Number `json:"transaction_id,omitempty"`
	Amount         float64     `json:"amount,omitempty"`
	NewSrcBalance  float64     `json:"new_src_balance,omitempty"`
	NewDestBalance float64     `json:"new_dest_balance,omitempty"`
}

const (
	wsTypeSubscribe    = "subscribe_notifications"
	wsTypeNotification = "notification"
	wsTypeTransaction  = "transaction.success"
	wsTypeSubscribeAck = "notification_subscription"
)

// BalanceUpdate is the bus payload for a settled transaction.
type BalanceUpdate struct {
	TransactionID  string
	Amount         float64
	NewSrcBalance  float64
	NewDestBalance float64
}
