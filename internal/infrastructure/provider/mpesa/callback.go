package mpesa

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/elimupay/billing/internal/domain/provider"
)

// stkCallback mirrors the Daraja STK result envelope. CallbackMetadata is
// only present on success.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback canonicalizes a Daraja STK result payload
func (g *Gateway) ParseCallback(payload json.RawMessage) (*provider.CallbackResult, error) {
	var cb stkCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, provider.NewError(provider.FailureUnresolvedReference, "MALFORMED_CALLBACK", "failed to parse stk callback", err.Error())
	}

	stk := cb.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, provider.NewError(provider.FailureUnresolvedReference, "MISSING_REFERENCE", "stk callback carries no CheckoutRequestID", "")
	}

	result := &provider.CallbackResult{
		Success:    stk.ResultCode == 0,
		ResultCode: strconv.Itoa(stk.ResultCode),
		ResultDesc: stk.ResultDesc,
		Currency:   "KES",
		Reference:  stk.CheckoutRequestID,
	}

	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if f, ok := item.Value.(float64); ok {
				result.Amount = decimal.NewFromFloat(f)
			}
		case "MpesaReceiptNumber":
			if s, ok := item.Value.(string); ok {
				result.ReceiptNumber = s
				result.ExternalID = s
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				result.PhoneNumber = strconv.FormatInt(int64(v), 10)
			case string:
				result.PhoneNumber = v
			}
		}
	}

	if result.Success && result.ReceiptNumber == "" {
		return nil, provider.NewError(provider.FailureValidationMismatch, "MISSING_RECEIPT",
			"successful stk callback carries no receipt number",
			fmt.Sprintf("checkout_request_id=%s", stk.CheckoutRequestID))
	}

	if result.Success && result.Amount.IsZero() {
		return nil, provider.NewError(provider.FailureValidationMismatch, "MISSING_AMOUNT",
			"successful stk callback carries no amount",
			fmt.Sprintf("checkout_request_id=%s", stk.CheckoutRequestID))
	}

	return result, nil
}
