package order

import (
	"context"

	"tokopaya-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	Create(ctx context.Context, userID int64, items []NewItem, shipping ShippingDetails) (*Order, error)
	List(ctx context.Context, userID int64) ([]*Order, error)
	Detail(ctx context.Context, userID, orderID int64) (*Order, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, userID int64, items []NewItem, shipping ShippingDetails) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.Int64("user_id", userID),
		zap.Int("item_count", len(items)),
	)

	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	o, err := s.repo.CreateOrderTx(ctx, userID, items, shipping)
	if err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, err
	}

	log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("total_amount", o.TotalAmount),
	)
	return o, nil
}

func (s *service) List(ctx context.Context, userID int64) ([]*Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Detail returns the order only to its owner.
func (s *service) Detail(ctx context.Context, userID, orderID int64) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrUnauthorized
	}
	return o, nil
}
