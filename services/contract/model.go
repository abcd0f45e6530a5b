package contract

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Contract lifecycle status, owned by the contract state machine.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusDisputed  = "disputed"
)

// Workflow status tracks where the money is, independent of the
// contract lifecycle above.
const (
	WorkflowPaymentPending   = "payment_pending"
	WorkflowActive           = "active"
	WorkflowWaitingReview    = "waiting_review"
	WorkflowPaymentAvailable = "payment_available"
	WorkflowPaymentWithdrawn = "payment_withdrawn"
	WorkflowRefunded         = "refunded"
)

type Contract struct {
	ID             string          `gorm:"column:id;primaryKey" json:"id"`
	BrandID        string          `gorm:"column:brand_id;index" json:"brand_id"`
	CreatorID      string          `gorm:"column:creator_id;index" json:"creator_id"`
	Title          string          `gorm:"column:title" json:"title"`
	Budget         decimal.Decimal `gorm:"column:budget;type:numeric(20,4)" json:"budget"`
	Currency       string          `gorm:"column:currency" json:"currency"`
	Status         string          `gorm:"column:status" json:"status"`
	WorkflowStatus string          `gorm:"column:workflow_status" json:"workflow_status"`
	Metadata       datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Contract) TableName() string {
	return "contracts"
}
