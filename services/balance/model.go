package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance transaction types, one per mutation the ledger supports.
const (
	TxnCreditPending      = "credit_pending"
	TxnCreditAvailable    = "credit_available"
	TxnReleasePending     = "release_pending"
	TxnDebitPending       = "debit_pending"
	TxnWithdrawalReserve  = "withdrawal_reserve"
	TxnWithdrawalComplete = "withdrawal_complete"
	TxnWithdrawalReturn   = "withdrawal_return"
	TxnRefundClawback     = "refund_clawback"
)

// CreatorBalance has one row per creator. All amount columns stay
// non-negative; mutations are relative increments under a row lock, never
// absolute overwrites.
type CreatorBalance struct {
	ID               string          `gorm:"column:id;primaryKey" json:"id"`
	CreatorID        string          `gorm:"column:creator_id;uniqueIndex" json:"creator_id"`
	Currency         string          `gorm:"column:currency" json:"currency"`
	PendingBalance   decimal.Decimal `gorm:"column:pending_balance;type:numeric(20,4)" json:"pending_balance"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:numeric(20,4)" json:"available_balance"`
	TotalEarned      decimal.Decimal `gorm:"column:total_earned;type:numeric(20,4)" json:"total_earned"`
	TotalWithdrawn   decimal.Decimal `gorm:"column:total_withdrawn;type:numeric(20,4)" json:"total_withdrawn"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (CreatorBalance) TableName() string {
	return "creator_balances"
}

// BalanceTransaction is the audit record written in the same database
// transaction as every balance mutation.
type BalanceTransaction struct {
	ID          string          `gorm:"column:id;primaryKey" json:"id"`
	CreatorID   string          `gorm:"column:creator_id;index" json:"creator_id"`
	Type        string          `gorm:"column:type" json:"type"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(20,4)" json:"amount"`
	ReferenceID string          `gorm:"column:reference_id;index" json:"reference_id"`
	Description string          `gorm:"column:description" json:"description"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (BalanceTransaction) TableName() string {
	return "balance_transactions"
}
