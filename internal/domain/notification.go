package domain

import "time"

// Channel enumerates delivery channels.
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
)

// DeliveryStatus tracks a notification record through the dispatch loop.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
)

// NotificationRecord is the unit of idempotent delivery: one row per
// (event, recipient, channel) triple. Never deleted, only marked terminal.
type NotificationRecord struct {
	EventID       string
	EventType     string
	RecipientID   string
	Channel       Channel
	Address       string
	Subject       string
	Body          string
	Status        DeliveryStatus
	Attempts      int
	LastAttemptAt *time.Time
	LastError     *string
	CreatedAt     time.Time
}

// Terminal reports whether the record needs no further delivery attempts.
func (r *NotificationRecord) Terminal() bool {
	return r.Status == DeliveryStatusDelivered || r.Status == DeliveryStatusFailed
}
