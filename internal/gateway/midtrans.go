package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tokopaya-be/internal/logger"

	"go.uber.org/zap"
)

const (
	sandboxCoreURL    = "https://api.sandbox.midtrans.com/v2"
	productionCoreURL = "https://api.midtrans.com/v2"

	sandboxSnapURL    = "https://app.sandbox.midtrans.com/snap/v1"
	productionSnapURL = "https://app.midtrans.com/snap/v1"
)

type midtransClient struct {
	serverKey  string
	coreURL    string
	snapURL    string
	appURL     string
	httpClient *http.Client
	jakartaLoc *time.Location
}

// NewMidtransClient builds the gateway client from an explicit, immutable
// configuration. Sandbox vs production decides both API hosts.
func NewMidtransClient(serverKey string, production bool) Client {
	if serverKey == "" {
		logger.L().Warn("Midtrans server key is empty")
	}

	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		logger.L().Error("failed to load Jakarta location, defaulting to UTC", zap.Error(err))
		loc = time.UTC
	}

	coreURL, snapURL, appURL := sandboxCoreURL, sandboxSnapURL, "https://app.sandbox.midtrans.com"
	if production {
		coreURL, snapURL, appURL = productionCoreURL, productionSnapURL, "https://app.midtrans.com"
	}

	return &midtransClient{
		serverKey: serverKey,
		coreURL:   coreURL,
		snapURL:   snapURL,
		appURL:    appURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		jakartaLoc: loc,
	}
}

// ----------------- Charge -----------------

type chargeResponse struct {
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	GrossAmount       string `json:"gross_amount"`
	StatusMessage     string `json:"status_message"`
	ExpiryTime        string `json:"expiry_time"`

	VANumbers []struct {
		VANumber string `json:"va_number"`
		Bank     string `json:"bank"`
	} `json:"va_numbers"`

	BillKey    string `json:"bill_key"`
	BillerCode string `json:"biller_code"`

	Actions []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"actions"`
}

func (m *midtransClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.Method == MethodSnap {
		return m.chargeSnap(ctx, req)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("gateway_order_id", req.OrderID),
		zap.String("method", string(req.Method)),
		zap.Int64("gross_amount", req.GrossAmount),
	)

	body := map[string]interface{}{
		"transaction_details": map[string]interface{}{
			"order_id":     req.OrderID,
			"gross_amount": req.GrossAmount,
		},
		"item_details":     req.Items,
		"customer_details": req.Customer,
	}

	switch req.Method {
	case MethodQRIS:
		body["payment_type"] = "gopay"
		if req.CallbackURL != "" {
			body["gopay"] = map[string]interface{}{
				"enable_callback": true,
				"callback_url":    req.CallbackURL,
			}
		}
	case MethodVirtualAccount:
		body["payment_type"] = "bank_transfer"
		body["bank_transfer"] = map[string]interface{}{
			"bank": req.Bank,
		}
	case MethodMandiriBill:
		body["payment_type"] = "echannel"
		body["echannel"] = map[string]interface{}{
			"bill_info1": "Payment For:",
			"bill_info2": "Order Payment",
		}
	default:
		return nil, fmt.Errorf("unsupported payment method: %s", req.Method)
	}

	raw, err := m.post(ctx, m.coreURL+"/charge", body)
	if err != nil {
		log.Error("Midtrans charge failed", zap.Error(err))
		return nil, err
	}

	var res chargeResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("Failed decoding Midtrans charge response", zap.Error(err))
		return nil, err
	}

	result := &ChargeResult{
		TransactionID:     res.TransactionID,
		OrderID:           res.OrderID,
		TransactionStatus: res.TransactionStatus,
		GrossAmount:       res.GrossAmount,
		ExpiryTime:        m.parseExpiry(res.ExpiryTime),
		Raw:               raw,
	}

	switch req.Method {
	case MethodQRIS:
		qris := &QRISResult{}
		for _, action := range res.Actions {
			switch action.Name {
			case "generate-qr-code":
				qris.QRCodeURL = action.URL
			case "deeplink-redirect":
				qris.DeeplinkURL = action.URL
			}
		}
		result.QRIS = qris
	case MethodVirtualAccount:
		va := &VirtualAccountResult{Bank: req.Bank}
		if len(res.VANumbers) > 0 {
			va.VANumber = res.VANumbers[0].VANumber
			va.Bank = res.VANumbers[0].Bank
		}
		result.VirtualAccount = va
	case MethodMandiriBill:
		result.MandiriBill = &MandiriBillResult{
			BillKey:    res.BillKey,
			BillerCode: res.BillerCode,
		}
	}

	log.Info("Midtrans charge created",
		zap.String("transaction_id", res.TransactionID),
		zap.String("transaction_status", res.TransactionStatus),
	)

	return result, nil
}

func (m *midtransClient) chargeSnap(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway_order_id", req.OrderID),
		zap.Int64("gross_amount", req.GrossAmount),
	)

	body := map[string]interface{}{
		"transaction_details": map[string]interface{}{
			"order_id":     req.OrderID,
			"gross_amount": req.GrossAmount,
		},
		"item_details":     req.Items,
		"customer_details": req.Customer,
	}

	raw, err := m.post(ctx, m.snapURL+"/transactions", body)
	if err != nil {
		log.Error("Midtrans Snap transaction failed", zap.Error(err))
		return nil, err
	}

	var res struct {
		Token       string `json:"token"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("Failed decoding Snap response", zap.Error(err))
		return nil, err
	}

	redirectURL := res.RedirectURL
	if redirectURL == "" {
		redirectURL = fmt.Sprintf("%s/snap/v2/vtweb/%s", m.appURL, res.Token)
	}

	log.Info("Midtrans Snap transaction created")

	// Snap issues no transaction id until the payer picks a method; the
	// webhook carries it later.
	return &ChargeResult{
		OrderID:           req.OrderID,
		TransactionStatus: "pending",
		Snap: &SnapResult{
			Token:       res.Token,
			RedirectURL: redirectURL,
		},
		Raw: raw,
	}, nil
}

// ----------------- Status -----------------

func (m *midtransClient) Status(ctx context.Context, gatewayOrderID string) (*StatusResult, error) {
	log := logger.FromCtx(ctx).With(zap.String("gateway_order_id", gatewayOrderID))

	url := fmt.Sprintf("%s/%s/status", m.coreURL, gatewayOrderID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		log.Error("Failed building request", zap.Error(err))
		return nil, err
	}
	req.SetBasicAuth(m.serverKey, "")
	req.Header.Add("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Error("Midtrans status request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read midtrans response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Midtrans returned error",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", raw),
		)
		return nil, fmt.Errorf("midtrans error: %s", string(raw))
	}

	var res struct {
		TransactionID     string `json:"transaction_id"`
		OrderID           string `json:"order_id"`
		TransactionStatus string `json:"transaction_status"`
		FraudStatus       string `json:"fraud_status"`
		GrossAmount       string `json:"gross_amount"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("Failed decoding status response", zap.Error(err))
		return nil, err
	}

	return &StatusResult{
		TransactionID:     res.TransactionID,
		OrderID:           res.OrderID,
		TransactionStatus: res.TransactionStatus,
		FraudStatus:       res.FraudStatus,
		GrossAmount:       res.GrossAmount,
		Raw:               raw,
	}, nil
}

// ----------------- Cancel -----------------

func (m *midtransClient) Cancel(ctx context.Context, gatewayOrderID string) error {
	log := logger.FromCtx(ctx).With(zap.String("gateway_order_id", gatewayOrderID))

	url := fmt.Sprintf("%s/%s/cancel", m.coreURL, gatewayOrderID)

	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return err
	}
	req.SetBasicAuth(m.serverKey, "")
	req.Header.Add("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Error("Midtrans cancel request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return fmt.Errorf("failed to read midtrans response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Failed to cancel transaction",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", raw),
		)
		return fmt.Errorf("midtrans cancel error: %s", string(raw))
	}

	log.Info("Transaction cancelled on gateway")
	return nil
}

// ----------------- helpers -----------------

func (m *midtransClient) post(ctx context.Context, url string, body interface{}) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(m.serverKey, "")
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read midtrans response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("midtrans error: %s", string(raw))
	}

	return raw, nil
}

// parseExpiry handles the gateway's "2006-01-02 15:04:05" local-time format.
func (m *midtransClient) parseExpiry(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, m.jakartaLoc)
	if err != nil {
		return nil
	}
	return &t
}
