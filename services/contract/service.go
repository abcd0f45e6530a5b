package contract

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"creatorlane-marketplace/pkg/db/option"
	"creatorlane-marketplace/pkg/errutil"
	"creatorlane-marketplace/pkg/repository"
)

var ErrNotFound = errutil.New(errutil.StatusNotFound, "contract not found")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	contracts repository.Repository[Contract]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		contracts: repository.ProvideStore[Contract](p.DB),
	}
}

type CreateRequest struct {
	BrandID   string          `json:"brand_id" binding:"required"`
	CreatorID string          `json:"creator_id" binding:"required"`
	Title     string          `json:"title" binding:"required"`
	Budget    decimal.Decimal `json:"budget" binding:"required"`
	Currency  string          `json:"currency"`
	Metadata  datatypes.JSON  `json:"metadata"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Contract, error) {
	if !req.Budget.IsPositive() {
		return nil, errutil.ValidationFailed("budget must be positive", nil)
	}

	c := &Contract{
		ID:             s.node.Generate().String(),
		BrandID:        req.BrandID,
		CreatorID:      req.CreatorID,
		Title:          req.Title,
		Budget:         req.Budget,
		Currency:       req.Currency,
		Status:         StatusPending,
		WorkflowStatus: WorkflowPaymentPending,
		Metadata:       req.Metadata,
	}

	if err := s.contracts.Create(ctx, c); err != nil {
		zap.L().Error("failed to create contract", zap.Error(err))
		return nil, errutil.Internal("failed to create contract", err)
	}

	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Contract, error) {
	c, err := s.contracts.FindOne(ctx, &Contract{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to query contract", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) ListByBrand(ctx context.Context, brandID string) ([]*Contract, error) {
	return s.contracts.Find(ctx, &Contract{BrandID: brandID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}))
}

// SetWorkflowStatus transitions the money-side workflow status inside the
// caller's transaction so contract and escrow state move together.
func (s *Service) SetWorkflowStatus(ctx context.Context, tx *gorm.DB, contractID, workflowStatus string) error {
	store := s.contracts
	if tx != nil {
		store = s.contracts.WithTrx(tx)
	}
	return store.Update(ctx, contractID, map[string]any{
		"workflow_status": workflowStatus,
		"updated_at":      time.Now().UTC(),
	})
}

// SetStatus updates the contract lifecycle status.
func (s *Service) SetStatus(ctx context.Context, tx *gorm.DB, contractID, status string) error {
	store := s.contracts
	if tx != nil {
		store = s.contracts.WithTrx(tx)
	}
	return store.Update(ctx, contractID, map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
}
