package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the canonical movement direction. The deposit/withdrawal
// pair is the only vocabulary used anywhere in this service.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdrawal
}

// TransactionStatus is the lifecycle state of a transaction. Settlement
// happens at the instant the approval threshold is crossed, so the observable
// terminal states are completed and rejected; approved names the intermediate
// instant in event payloads.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusApproved  TransactionStatus = "approved"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusCompleted TransactionStatus = "completed"
)

// Terminal reports whether no further vote may mutate the transaction.
func (s TransactionStatus) Terminal() bool {
	return s != TransactionStatusPending
}

// Transaction is a proposed balance movement on a group wallet. It is created
// pending and only ever mutated through vote submission.
type Transaction struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id"`
	WalletID    string            `gorm:"size:36;not null;index" json:"wallet_id"`
	Type        TransactionType   `gorm:"size:16;not null" json:"type"`
	Amount      decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	Description string            `gorm:"size:512" json:"description"`
	CreatedBy   string            `gorm:"size:36;not null" json:"created_by"`
	Status      TransactionStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	// Vote sets, populated by the service layer from vote rows.
	ApprovedBy []string `gorm:"-" json:"approved_by"`
	RejectedBy []string `gorm:"-" json:"rejected_by"`
}

func (Transaction) TableName() string { return "transaction" }
