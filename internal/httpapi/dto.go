package httpapi

import (
	"time"

	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"
	"tokopaya-be/internal/product"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type orderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	Items              []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingName       string             `json:"shipping_name" validate:"required"`
	ShippingAddress    string             `json:"shipping_address" validate:"required"`
	ShippingCity       string             `json:"shipping_city" validate:"required"`
	ShippingPostalCode string             `json:"shipping_postal_code"`
	ShippingPhone      string             `json:"shipping_phone" validate:"required"`
	ShippingAmount     int64              `json:"shipping_amount" validate:"gte=0"`
}

type createPaymentRequest struct {
	OrderID     int64  `json:"order_id" validate:"required,gt=0"`
	Method      string `json:"method" validate:"required,oneof=midtrans_snap qris virtual_account mandiri_bill"`
	Bank        string `json:"bank" validate:"omitempty,oneof=bca bni bri cimb"`
	CallbackURL string `json:"callback_url" validate:"omitempty,url"`
}

type productResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
}

type orderItemResponse struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	TotalAmount    int64               `json:"total_amount"`
	ShippingAmount int64               `json:"shipping_amount"`
	Status         order.Status        `json:"status"`
	Items          []orderItemResponse `json:"items,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

type paymentResponse struct {
	ID             int64      `json:"id"`
	OrderID        int64      `json:"order_id"`
	Method         string     `json:"method"`
	GatewayOrderID string     `json:"gateway_order_id"`
	Amount         int64      `json:"amount"`
	Status         string     `json:"status"`
	SnapToken      string     `json:"snap_token,omitempty"`
	PaymentURL     string     `json:"payment_url,omitempty"`
	QRCodeURL      string     `json:"qr_code_url,omitempty"`
	DeeplinkURL    string     `json:"deeplink_url,omitempty"`
	VANumber       string     `json:"va_number,omitempty"`
	Bank           string     `json:"bank,omitempty"`
	BillKey        string     `json:"bill_key,omitempty"`
	BillerCode     string     `json:"biller_code,omitempty"`
	ExpiryTime     *time.Time `json:"expiry_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
	}
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		TotalAmount:    o.TotalAmount,
		ShippingAmount: o.ShippingAmount,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		})
	}
	return resp
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Method:         string(p.Method),
		GatewayOrderID: p.GatewayOrderID,
		Amount:         p.Amount,
		Status:         string(p.Status),
		SnapToken:      p.SnapToken,
		PaymentURL:     p.PaymentURL,
		QRCodeURL:      p.QRCodeURL,
		DeeplinkURL:    p.DeeplinkURL,
		VANumber:       p.VANumber,
		Bank:           p.Bank,
		BillKey:        p.BillKey,
		BillerCode:     p.BillerCode,
		ExpiryTime:     p.ExpiryTime,
		CreatedAt:      p.CreatedAt,
	}
}
