package models

import "time"

// Channel is the messaging provider a message went out on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
)

// MessageStatus is the delivery state of a sent message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Rank orders the forward-only statuses; failed sits outside the progression.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// CommunicationLog is one message-send event. ReadAt is only set together with
// StatusRead; SentimentScore is written once at creation.
type CommunicationLog struct {
	ID                string        `gorm:"primaryKey" json:"id"`
	SenderID          string        `gorm:"index" json:"sender_id"`
	RecipientIDs      []string      `gorm:"serializer:json;type:text" json:"recipient_ids"`
	Message           string        `gorm:"type:text" json:"message"`
	Channel           Channel       `gorm:"index" json:"channel"`
	Status            MessageStatus `gorm:"index" json:"status"`
	ProviderMessageID string        `gorm:"index" json:"provider_message_id,omitempty"`
	SentAt            time.Time     `gorm:"index" json:"sent_at"`
	ReadAt            *time.Time    `json:"read_at,omitempty"`
	SentimentScore    *float64      `json:"sentiment_score,omitempty"`
	SentimentLabel    string        `json:"sentiment_label,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (CommunicationLog) TableName() string {
	return "communication_logs"
}

// Advance applies a delivery status event. Statuses only move forward
// (sent < delivered < read) and failed is terminal, accepted only before
// delivery. ReadAt is set when the message reaches read. It reports whether the
// row changed.
func (l *CommunicationLog) Advance(status MessageStatus, at time.Time) bool {
	if l.Status == StatusFailed {
		return false
	}
	switch status {
	case StatusFailed:
		if l.Status.Rank() > StatusSent.Rank() {
			return false
		}
		l.Status = StatusFailed
		return true
	case StatusSent, StatusDelivered, StatusRead:
		if status.Rank() <= l.Status.Rank() {
			return false
		}
		l.Status = status
		if status == StatusRead && l.ReadAt == nil {
			t := at
			l.ReadAt = &t
		}
		return true
	default:
		return false
	}
}
