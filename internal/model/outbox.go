package model

import "time"

// Event types written to the outbox. The chat application consumes these to
// render wallet activity inside conversations.
const (
	EventWalletCreated       = "wallet.created"
	EventTransactionCreated  = "transaction.created"
	EventTransactionSettled  = "transaction.settled"
	EventTransactionRejected = "transaction.rejected"
)

type OutboxEvent struct {
	ID          uint64    `gorm:"primaryKey"`
	Aggregate   string    `gorm:"size:64;not null"`
	AggregateID string    `gorm:"size:36;not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Processed   bool      `gorm:"not null;default:false"`
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }
