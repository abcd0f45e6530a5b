package funding

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingSession tracks a checkout session handed to a payer. The reconcile
// sweep uses rows stuck in created to catch completions whose webhook and
// redirect both went missing.
const (
	SessionCreated   = "created"
	SessionCompleted = "completed"
	SessionAbandoned = "abandoned"
)

type FundingSession struct {
	ID               string          `gorm:"column:id;primaryKey" json:"id"`
	ContractID       string          `gorm:"column:contract_id;index" json:"contract_id"`
	PayerID          string          `gorm:"column:payer_id" json:"payer_id"`
	GatewaySessionID string          `gorm:"column:gateway_session_id;uniqueIndex" json:"gateway_session_id"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(20,4)" json:"amount"`
	Currency         string          `gorm:"column:currency" json:"currency"`
	Status           string          `gorm:"column:status;index" json:"status"`
	CheckoutURL      string          `gorm:"column:checkout_url" json:"checkout_url"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (FundingSession) TableName() string {
	return "funding_sessions"
}
