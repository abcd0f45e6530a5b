package task

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"creatorlane-marketplace/pkg/taskname"
)

type WithdrawalEventPayload struct {
	WithdrawalID string          `json:"withdrawal_id"`
	Code         string          `json:"code"`
	CreatorID    string          `json:"creator_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Method       string          `json:"method"`
	Status       string          `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

func NewWithdrawalRequestedTask(p WithdrawalEventPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WithdrawalRequested, payload,
		asynq.Queue("payment-events")), nil
}

func NewWithdrawalCompletedTask(p WithdrawalEventPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WithdrawalCompleted, payload,
		asynq.Queue("payment-events")), nil
}

func NewWithdrawalRejectedTask(p WithdrawalEventPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WithdrawalRejected, payload,
		asynq.Queue("payment-events")), nil
}
