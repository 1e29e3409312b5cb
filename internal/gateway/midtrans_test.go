package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient() *midtransClient {
	return NewMidtransClient("server-key", false).(*midtransClient)
}

func baseChargeRequest(method Method) ChargeRequest {
	return ChargeRequest{
		OrderID:     "ORDER-7-1700000000",
		GrossAmount: 270,
		Items: []Item{
			{ID: "1", Price: 100, Quantity: 2, Name: "Kopi Gayo"},
			{ID: "SHIPPING", Price: 20, Quantity: 1, Name: "Shipping Cost"},
		},
		Customer: Customer{FirstName: "Budi", Email: "budi@example.com"},
		Method:   method,
	}
}

func TestMidtransClient_Charge_QRIS(t *testing.T) {
	gw := newTestClient()

	t.Run("Success", func(t *testing.T) {
		respBody := `{
			"transaction_id": "txn-1",
			"order_id": "ORDER-7-1700000000",
			"transaction_status": "pending",
			"gross_amount": "270.00",
			"expiry_time": "2024-12-31 23:59:59",
			"actions": [
				{"name": "generate-qr-code", "url": "https://api.sandbox.midtrans.com/qr/txn-1"},
				{"name": "deeplink-redirect", "url": "gojek://gopay/txn-1"}
			]
		}`

		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, "POST", req.Method)
			assert.Equal(t, "https://api.sandbox.midtrans.com/v2/charge", req.URL.String())

			user, _, ok := req.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "server-key", user)

			var payload map[string]interface{}
			body, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(body, &payload))
			assert.Equal(t, "gopay", payload["payment_type"])

			return jsonResponse(http.StatusOK, respBody)
		})

		res, err := gw.Charge(context.Background(), baseChargeRequest(MethodQRIS))
		require.NoError(t, err)
		assert.Equal(t, "txn-1", res.TransactionID)
		assert.Equal(t, "pending", res.TransactionStatus)
		require.NotNil(t, res.QRIS)
		assert.Equal(t, "https://api.sandbox.midtrans.com/qr/txn-1", res.QRIS.QRCodeURL)
		assert.Equal(t, "gojek://gopay/txn-1", res.QRIS.DeeplinkURL)
		require.NotNil(t, res.ExpiryTime)
		assert.NotEmpty(t, res.Raw)
	})

	t.Run("CallbackURLForwarded", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			var payload map[string]interface{}
			body, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(body, &payload))

			gopay, ok := payload["gopay"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, true, gopay["enable_callback"])
			assert.Equal(t, "myapp://payment-done", gopay["callback_url"])

			return jsonResponse(http.StatusOK, `{"transaction_id":"txn-2","transaction_status":"pending","actions":[]}`)
		})

		req := baseChargeRequest(MethodQRIS)
		req.CallbackURL = "myapp://payment-done"
		_, err := gw.Charge(context.Background(), req)
		assert.NoError(t, err)
	})

	t.Run("APIError", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusPaymentRequired, `{"status_message":"Merchant cannot process the transaction"}`)
		})

		res, err := gw.Charge(context.Background(), baseChargeRequest(MethodQRIS))
		assert.Error(t, err)
		assert.Nil(t, res)
		assert.Contains(t, err.Error(), "midtrans error")
	})
}

func TestMidtransClient_Charge_VirtualAccount(t *testing.T) {
	gw := newTestClient()

	respBody := `{
		"transaction_id": "txn-va",
		"order_id": "ORDER-7-1700000000",
		"transaction_status": "pending",
		"gross_amount": "270.00",
		"va_numbers": [{"va_number": "9888812345", "bank": "bca"}]
	}`

	gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		var payload map[string]interface{}
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "bank_transfer", payload["payment_type"])

		bt, ok := payload["bank_transfer"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "bca", bt["bank"])

		return jsonResponse(http.StatusOK, respBody)
	})

	req := baseChargeRequest(MethodVirtualAccount)
	req.Bank = "bca"

	res, err := gw.Charge(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.VirtualAccount)
	assert.Equal(t, "9888812345", res.VirtualAccount.VANumber)
	assert.Equal(t, "bca", res.VirtualAccount.Bank)
}

func TestMidtransClient_Charge_MandiriBill(t *testing.T) {
	gw := newTestClient()

	respBody := `{
		"transaction_id": "txn-bill",
		"order_id": "ORDER-7-1700000000",
		"transaction_status": "pending",
		"gross_amount": "270.00",
		"bill_key": "990000001",
		"biller_code": "70012"
	}`

	gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		var payload map[string]interface{}
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "echannel", payload["payment_type"])

		return jsonResponse(http.StatusOK, respBody)
	})

	res, err := gw.Charge(context.Background(), baseChargeRequest(MethodMandiriBill))
	require.NoError(t, err)
	require.NotNil(t, res.MandiriBill)
	assert.Equal(t, "990000001", res.MandiriBill.BillKey)
	assert.Equal(t, "70012", res.MandiriBill.BillerCode)
}

func TestMidtransClient_Charge_Snap(t *testing.T) {
	gw := newTestClient()

	t.Run("Success", func(t *testing.T) {
		respBody := `{
			"token": "snap-token-1",
			"redirect_url": "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-token-1"
		}`

		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, "https://app.sandbox.midtrans.com/snap/v1/transactions", req.URL.String())
			return jsonResponse(http.StatusCreated, respBody)
		})

		res, err := gw.Charge(context.Background(), baseChargeRequest(MethodSnap))
		require.NoError(t, err)
		require.NotNil(t, res.Snap)
		assert.Equal(t, "snap-token-1", res.Snap.Token)
		assert.Equal(t, "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-token-1", res.Snap.RedirectURL)
		assert.Equal(t, "pending", res.TransactionStatus)
		assert.Empty(t, res.TransactionID)
	})

	t.Run("RedirectURLFallback", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, `{"token": "snap-token-2"}`)
		})

		res, err := gw.Charge(context.Background(), baseChargeRequest(MethodSnap))
		require.NoError(t, err)
		assert.Equal(t, "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-token-2", res.Snap.RedirectURL)
	})
}

func TestMidtransClient_Charge_UnsupportedMethod(t *testing.T) {
	gw := newTestClient()

	_, err := gw.Charge(context.Background(), baseChargeRequest(Method("cash")))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported payment method")
}

func TestMidtransClient_Status(t *testing.T) {
	gw := newTestClient()

	t.Run("Success", func(t *testing.T) {
		respBody := `{
			"transaction_id": "txn-1",
			"order_id": "ORDER-7-1700000000",
			"transaction_status": "settlement",
			"fraud_status": "accept",
			"gross_amount": "270.00"
		}`

		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, "GET", req.Method)
			assert.Equal(t, "https://api.sandbox.midtrans.com/v2/ORDER-7-1700000000/status", req.URL.String())
			return jsonResponse(http.StatusOK, respBody)
		})

		res, err := gw.Status(context.Background(), "ORDER-7-1700000000")
		require.NoError(t, err)
		assert.Equal(t, "settlement", res.TransactionStatus)
		assert.Equal(t, "accept", res.FraudStatus)
		assert.Equal(t, StatusSuccess, MapStatus(res.TransactionStatus, res.FraudStatus))
	})

	t.Run("NotFound", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusNotFound, `{"status_message":"Transaction doesn't exist"}`)
		})

		res, err := gw.Status(context.Background(), "ORDER-missing")
		assert.Error(t, err)
		assert.Nil(t, res)
	})
}

func TestMidtransClient_Cancel(t *testing.T) {
	gw := newTestClient()

	t.Run("Success", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, "POST", req.Method)
			assert.Equal(t, "https://api.sandbox.midtrans.com/v2/ORDER-7-1700000000/cancel", req.URL.String())
			return jsonResponse(http.StatusOK, `{"status_code":"200","transaction_status":"cancel"}`)
		})

		err := gw.Cancel(context.Background(), "ORDER-7-1700000000")
		assert.NoError(t, err)
	})

	t.Run("GatewayRejects", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusPreconditionFailed, `{"status_message":"Transaction cannot be canceled"}`)
		})

		err := gw.Cancel(context.Background(), "ORDER-7-1700000000")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "midtrans cancel error")
	})
}

func TestMidtransClient_ProductionURLs(t *testing.T) {
	gw := NewMidtransClient("server-key", true).(*midtransClient)
	assert.Equal(t, "https://api.midtrans.com/v2", gw.coreURL)
	assert.Equal(t, "https://app.midtrans.com/snap/v1", gw.snapURL)
}
