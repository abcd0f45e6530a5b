package escrow

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EscrowPayment status. Rows are never deleted; refunded and completed
// records stay behind as the audit trail.
const (
	StatusPending   = "pending"
	StatusHeld      = "held"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
)

// GatewayTransaction scope. Together with the external ref it forms the
// idempotency key, so the same ref can legally appear once per scope.
const (
	ScopeFunding = "funding"
	ScopeRefund  = "refund"
	ScopePayout  = "payout"
)

type EscrowPayment struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	Code          string          `gorm:"column:code;index" json:"code"`
	ContractID    string          `gorm:"column:contract_id;index" json:"contract_id"`
	BrandID       string          `gorm:"column:brand_id;index" json:"brand_id"`
	CreatorID     string          `gorm:"column:creator_id;index" json:"creator_id"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:numeric(20,4)" json:"total_amount"`
	PlatformFee   decimal.Decimal `gorm:"column:platform_fee;type:numeric(20,4)" json:"platform_fee"`
	CreatorAmount decimal.Decimal `gorm:"column:creator_amount;type:numeric(20,4)" json:"creator_amount"`
	Currency      string          `gorm:"column:currency" json:"currency"`
	Status        string          `gorm:"column:status;index" json:"status"`

	GatewaySessionID string `gorm:"column:gateway_session_id" json:"gateway_session_id,omitempty"`
	ExternalRef      string `gorm:"column:external_ref" json:"external_ref,omitempty"`

	HeldAt     *time.Time `gorm:"column:held_at" json:"held_at,omitempty"`
	ReleasedAt *time.Time `gorm:"column:released_at" json:"released_at,omitempty"`
	RefundedAt *time.Time `gorm:"column:refunded_at" json:"refunded_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (EscrowPayment) TableName() string {
	return "escrow_payments"
}

// GatewayTransaction mirrors one external gateway event. The unique index on
// (external_ref, scope) is the final arbiter of idempotency under
// concurrency; application-level pre-checks are an optimization only.
type GatewayTransaction struct {
	ID              string          `gorm:"column:id;primaryKey" json:"id"`
	ExternalRef     string          `gorm:"column:external_ref;uniqueIndex:idx_gateway_tx_ref_scope" json:"external_ref"`
	Scope           string          `gorm:"column:scope;uniqueIndex:idx_gateway_tx_ref_scope" json:"scope"`
	UserID          string          `gorm:"column:user_id;index" json:"user_id"`
	ContractID      string          `gorm:"column:contract_id;index" json:"contract_id,omitempty"`
	EscrowPaymentID string          `gorm:"column:escrow_payment_id;index" json:"escrow_payment_id,omitempty"`
	Status          string          `gorm:"column:status" json:"status"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(20,4)" json:"amount"`
	Currency        string          `gorm:"column:currency" json:"currency"`
	Metadata        datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (GatewayTransaction) TableName() string {
	return "gateway_transactions"
}
