package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// Method is the closed set of payment method families the gateway offers.
// Each family carries its own completion signal back in ChargeResult.
type Method string

const (
	MethodSnap           Method = "midtrans_snap"
	MethodQRIS           Method = "qris"
	MethodVirtualAccount Method = "virtual_account"
	MethodMandiriBill    Method = "mandiri_bill"
)

func (m Method) Valid() bool {
	switch m {
	case MethodSnap, MethodQRIS, MethodVirtualAccount, MethodMandiriBill:
		return true
	}
	return false
}

type Item struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type Address struct {
	FirstName   string `json:"first_name,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

type Customer struct {
	FirstName       string   `json:"first_name,omitempty"`
	Email           string   `json:"email,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
}

type ChargeRequest struct {
	OrderID     string
	GrossAmount int64
	Items       []Item
	Customer    Customer
	Method      Method

	// Bank applies to MethodVirtualAccount only: bca, bni, bri or cimb.
	Bank string

	// CallbackURL applies to MethodQRIS only (mobile deeplink return).
	CallbackURL string
}

// SnapResult is the hosted-checkout completion signal.
type SnapResult struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type QRISResult struct {
	QRCodeURL   string `json:"qr_code_url"`
	DeeplinkURL string `json:"deeplink_url"`
}

type VirtualAccountResult struct {
	VANumber string `json:"va_number"`
	Bank     string `json:"bank"`
}

type MandiriBillResult struct {
	BillKey    string `json:"bill_key"`
	BillerCode string `json:"biller_code"`
}

// ChargeResult is a typed envelope over the gateway's charge response:
// common transaction fields, exactly one method-specific block matching
// the requested Method, and the verbatim response body for audit.
type ChargeResult struct {
	TransactionID     string
	OrderID           string
	TransactionStatus string
	GrossAmount       string
	ExpiryTime        *time.Time

	Snap           *SnapResult
	QRIS           *QRISResult
	VirtualAccount *VirtualAccountResult
	MandiriBill    *MandiriBillResult

	Raw json.RawMessage
}

type StatusResult struct {
	TransactionID     string
	OrderID           string
	TransactionStatus string
	FraudStatus       string
	GrossAmount       string

	Raw json.RawMessage
}

// Client is the collaborator contract against the remote payment processor.
type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Status(ctx context.Context, gatewayOrderID string) (*StatusResult, error)
	Cancel(ctx context.Context, gatewayOrderID string) error
}
