package withdrawal

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Withdrawal state machine: pending -> completed | cancelled. Both outcomes
// are terminal.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Withdrawal struct {
	ID          string          `gorm:"column:id;primaryKey" json:"id"`
	Code        string          `gorm:"column:code;index" json:"code"`
	CreatorID   string          `gorm:"column:creator_id;index" json:"creator_id"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(20,4)" json:"amount"`
	Currency    string          `gorm:"column:currency" json:"currency"`
	Method      string          `gorm:"column:method" json:"method"`
	Details     datatypes.JSON  `gorm:"column:details" json:"details,omitempty"`
	Status      string          `gorm:"column:status;index" json:"status"`
	ExternalRef string          `gorm:"column:external_ref" json:"external_ref,omitempty"`
	Reason      string          `gorm:"column:reason" json:"reason,omitempty"`
	RequestedAt time.Time       `gorm:"column:requested_at" json:"requested_at"`
	ProcessedAt *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CancelledAt *time.Time      `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
