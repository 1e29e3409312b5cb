package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/order"

	"go.uber.org/zap"
)

// TransitionInput carries one observed gateway status into the lifecycle
// reconciler. RawPayload may be nil when the transition has no gateway
// document behind it (user-initiated cancel).
type TransitionInput struct {
	GatewayOrderID       string
	NewStatus            gateway.PaymentStatus
	GatewayTransactionID string
	RawPayload           json.RawMessage
}

type TransitionResult struct {
	Payment     *Payment
	OrderStatus order.Status
	Changed     bool
}

// TransitionApplier is the single write path for payment status changes
// outside the expiry sweep. Implementations apply the payment update and
// the order projection atomically.
type TransitionApplier interface {
	ApplyTransition(ctx context.Context, in TransitionInput) (*TransitionResult, error)
}

type ChargeParams struct {
	Method      gateway.Method
	Bank        string
	CallbackURL string
}

type StatusCheck struct {
	Payment *Payment
	Gateway *gateway.StatusResult
}

type Service interface {
	CreatePayment(ctx context.Context, userID, orderID int64, email string, params ChargeParams) (*Payment, error)
	Detail(ctx context.Context, userID, paymentID int64) (*Payment, error)
	CheckStatus(ctx context.Context, userID, paymentID int64) (*StatusCheck, error)
	Cancel(ctx context.Context, userID, paymentID int64) (*Payment, error)
}

type service struct {
	repo    Repository
	orders  order.Repository
	gw      gateway.Client
	applier TransitionApplier
	now     func() time.Time
}

func NewService(repo Repository, orders order.Repository, gw gateway.Client, applier TransitionApplier) Service {
	return &service{
		repo:    repo,
		orders:  orders,
		gw:      gw,
		applier: applier,
		now:     time.Now,
	}
}

// CreatePayment charges the gateway for an order and records the resulting
// payment. Nothing is persisted when the charge fails.
func (s *service) CreatePayment(ctx context.Context, userID, orderID int64, email string, params ChargeParams) (*Payment, error) {
	log := logger.FromCtx(ctx).With(
		zap.Int64("order_id", orderID),
		zap.String("method", string(params.Method)),
	)

	if !params.Method.Valid() {
		return nil, ErrInvalidMethod
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrUnauthorized
	}
	if o.Status == order.StatusPaid {
		return nil, ErrOrderAlreadyPaid
	}

	latest, err := s.repo.GetLatestByOrder(ctx, orderID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}
	if latest != nil && latest.Status == gateway.StatusSuccess {
		return nil, ErrOrderAlreadyPaid
	}

	req := gateway.ChargeRequest{
		OrderID:     gatewayOrderID(params.Method, o.ID, s.now()),
		GrossAmount: o.TotalAmount,
		Items:       chargeItems(o),
		Customer: gateway.Customer{
			FirstName: o.ShippingName,
			Email:     email,
			Phone:     o.ShippingPhone,
			ShippingAddress: &gateway.Address{
				FirstName:   o.ShippingName,
				Address:     o.ShippingAddress,
				City:        o.ShippingCity,
				PostalCode:  o.ShippingPostalCode,
				Phone:       o.ShippingPhone,
				CountryCode: "IDN",
			},
		},
		Method:      params.Method,
		Bank:        params.Bank,
		CallbackURL: params.CallbackURL,
	}

	res, err := s.gw.Charge(ctx, req)
	if err != nil {
		log.Error("gateway charge failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrGateway, err)
	}

	p := &Payment{
		OrderID:              o.ID,
		Method:               params.Method,
		GatewayOrderID:       req.OrderID,
		GatewayTransactionID: res.TransactionID,
		Amount:               o.TotalAmount,
		Status:               gateway.StatusPending,
		ExpiryTime:           res.ExpiryTime,
		RawResponse:          res.Raw,
	}
	switch {
	case res.Snap != nil:
		p.SnapToken = res.Snap.Token
		p.PaymentURL = res.Snap.RedirectURL
	case res.QRIS != nil:
		p.QRCodeURL = res.QRIS.QRCodeURL
		p.DeeplinkURL = res.QRIS.DeeplinkURL
	case res.VirtualAccount != nil:
		p.VANumber = res.VirtualAccount.VANumber
		p.Bank = res.VirtualAccount.Bank
	case res.MandiriBill != nil:
		p.BillKey = res.MandiriBill.BillKey
		p.BillerCode = res.MandiriBill.BillerCode
	}

	if err := s.repo.SavePayment(ctx, p); err != nil {
		log.Error("failed to save payment", zap.Error(err))
		return nil, err
	}

	log.Info("payment created",
		zap.Int64("payment_id", p.ID),
		zap.String("gateway_order_id", p.GatewayOrderID),
	)
	return p, nil
}

func (s *service) Detail(ctx context.Context, userID, paymentID int64) (*Payment, error) {
	return s.ownedPayment(ctx, userID, paymentID)
}

// CheckStatus queries the gateway for the payment's current state and
// reconciles local state through the same transition path webhooks use.
func (s *service) CheckStatus(ctx context.Context, userID, paymentID int64) (*StatusCheck, error) {
	log := logger.FromCtx(ctx).With(zap.Int64("payment_id", paymentID))

	p, err := s.ownedPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}

	st, err := s.gw.Status(ctx, p.GatewayOrderID)
	if err != nil {
		log.Error("gateway status query failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrGateway, err)
	}

	mapped := gateway.MapStatus(st.TransactionStatus, st.FraudStatus)
	if mapped != p.Status {
		res, err := s.applier.ApplyTransition(ctx, TransitionInput{
			GatewayOrderID:       p.GatewayOrderID,
			NewStatus:            mapped,
			GatewayTransactionID: st.TransactionID,
			RawPayload:           st.Raw,
		})
		if err != nil {
			return nil, err
		}
		p = res.Payment
		log.Info("payment status reconciled from poll",
			zap.String("payment_status", string(p.Status)),
			zap.String("order_status", string(res.OrderStatus)),
		)
	}

	return &StatusCheck{Payment: p, Gateway: st}, nil
}

// Cancel voids a pending payment. The gateway-side cancel is best effort;
// local state is authoritative.
func (s *service) Cancel(ctx context.Context, userID, paymentID int64) (*Payment, error) {
	log := logger.FromCtx(ctx).With(zap.Int64("payment_id", paymentID))

	p, err := s.ownedPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == gateway.StatusSuccess {
		return nil, ErrPaymentAlreadySucceeded
	}

	if err := s.gw.Cancel(ctx, p.GatewayOrderID); err != nil {
		log.Warn("gateway cancel failed, cancelling locally", zap.Error(err))
	}

	res, err := s.applier.ApplyTransition(ctx, TransitionInput{
		GatewayOrderID: p.GatewayOrderID,
		NewStatus:      gateway.StatusCancel,
	})
	if err != nil {
		return nil, err
	}

	log.Info("payment cancelled", zap.String("order_status", string(res.OrderStatus)))
	return res.Payment, nil
}

func (s *service) ownedPayment(ctx context.Context, userID, paymentID int64) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.GetByID(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrUnauthorized
	}
	return p, nil
}

// gatewayOrderID builds the reference sent to the gateway. QRIS charges
// carry their own prefix so support can tell the flows apart in the
// gateway dashboard.
func gatewayOrderID(method gateway.Method, orderID int64, at time.Time) string {
	prefix := "ORDER"
	if method == gateway.MethodQRIS {
		prefix = "QRIS"
	}
	return fmt.Sprintf("%s-%d-%d", prefix, orderID, at.Unix())
}

// chargeItems mirrors the order lines to the gateway, with shipping as an
// extra line so the item sum equals the charged gross amount.
func chargeItems(o *order.Order) []gateway.Item {
	items := make([]gateway.Item, 0, len(o.Items)+1)
	for _, it := range o.Items {
		items = append(items, gateway.Item{
			ID:       fmt.Sprintf("PRODUCT-%d", it.ProductID),
			Price:    it.UnitPrice,
			Quantity: it.Quantity,
			Name:     it.ProductName,
		})
	}
	if o.ShippingAmount > 0 {
		items = append(items, gateway.Item{
			ID:       "SHIPPING",
			Price:    o.ShippingAmount,
			Quantity: 1,
			Name:     "Shipping Cost",
		})
	}
	return items
}
