package task

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"creatorlane-marketplace/pkg/taskname"
)

type EscrowEventPayload struct {
	ContractID      string          `json:"contract_id"`
	EscrowPaymentID string          `json:"escrow_payment_id"`
	BrandID         string          `json:"brand_id"`
	CreatorID       string          `json:"creator_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	CreatorAmount   decimal.Decimal `json:"creator_amount"`
	Currency        string          `json:"currency"`
	Reason          string          `json:"reason,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

func NewContractFundedTask(p EscrowEventPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.ContractFunded, payload,
		asynq.Queue("payment-events")), nil
}

func NewEscrowReleasedTask(p EscrowEventPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.EscrowReleased, payload,
		asynq.Queue("payment-events")), nil
}

func NewEscrowRefundedTask(p EscrowEventPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.EscrowRefunded, payload,
		asynq.Queue("payment-events")), nil
}

// NewReconcileTask triggers a sweep over funding sessions stuck in created.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(taskname.FundingReconcile, nil, asynq.Queue("low"))
}
