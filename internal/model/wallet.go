package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the closed set of currencies a wallet may hold.
type Currency string

const (
	CurrencyUSD  Currency = "USD"
	CurrencyUSDC Currency = "USDC"
	CurrencySOL  Currency = "SOL"
	CurrencyBTC  Currency = "BTC"
	CurrencyETH  Currency = "ETH"
	CurrencyDAI  Currency = "DAI"
)

// Valid reports whether c is one of the supported currencies.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyUSDC, CurrencySOL, CurrencyBTC, CurrencyETH, CurrencyDAI:
		return true
	}
	return false
}

// Wallet is a group wallet shared by a set of members. Balance only moves
// when a transaction crosses the approval threshold.
type Wallet struct {
	ID                 string          `gorm:"primaryKey;size:36" json:"id"`
	Name               string          `gorm:"size:128;not null" json:"name"`
	Currency           Currency        `gorm:"size:8;not null" json:"currency"`
	Balance            decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"balance"`
	RequiredSignatures int             `gorm:"not null" json:"required_signatures"`
	ChatID             *string         `gorm:"size:36" json:"chat_id,omitempty"`
	Version            uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Members is populated by the service layer from wallet_member rows.
	Members []string `gorm:"-" json:"members,omitempty"`
}

func (Wallet) TableName() string { return "wallet" }

// WalletMember links a user to a wallet. The composite key makes the member
// set a real set.
type WalletMember struct {
	WalletID  string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (WalletMember) TableName() string { return "wallet_member" }
