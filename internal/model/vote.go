package model

import "time"

// VoteChoice is a member's stance on a pending transaction.
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
)

// Vote records one member's vote on one transaction. The composite primary
// key enforces one vote per user per transaction at the storage level, so the
// duplicate-vote invariant is structural rather than checked ad hoc.
type Vote struct {
	TransactionID string     `gorm:"primaryKey;size:36"`
	UserID        string     `gorm:"primaryKey;size:36"`
	Choice        VoteChoice `gorm:"size:16;not null"`
	// Signature is an opaque client-supplied string; it is stored, never
	// verified.
	Signature string    `gorm:"size:256"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Vote) TableName() string { return "vote" }
