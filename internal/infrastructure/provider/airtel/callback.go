package airtel

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/elimupay/billing/internal/domain/provider"
)

// transactionCallback mirrors the Airtel Money payment notification.
// status_code TS means settled, TF means failed.
type transactionCallback struct {
	Transaction struct {
		ID            string      `json:"id"`
		Message       string      `json:"message"`
		StatusCode    string      `json:"status_code"`
		AirtelMoneyID string      `json:"airtel_money_id"`
		Amount        json.Number `json:"amount"`
		Currency      string      `json:"currency"`
	} `json:"transaction"`
}

// ParseCallback canonicalizes an Airtel Money payment notification
func (g *Gateway) ParseCallback(payload json.RawMessage) (*provider.CallbackResult, error) {
	var cb transactionCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, provider.NewError(provider.FailureUnresolvedReference, "MALFORMED_CALLBACK", "failed to parse airtel callback", err.Error())
	}

	tx := cb.Transaction
	if tx.ID == "" {
		return nil, provider.NewError(provider.FailureUnresolvedReference, "MISSING_REFERENCE", "airtel callback carries no transaction id", "")
	}

	result := &provider.CallbackResult{
		Success:       tx.StatusCode == "TS",
		ResultCode:    tx.StatusCode,
		ResultDesc:    tx.Message,
		ExternalID:    tx.AirtelMoneyID,
		ReceiptNumber: tx.AirtelMoneyID,
		Currency:      g.currency,
		Reference:     tx.ID,
	}
	if tx.Currency != "" {
		result.Currency = tx.Currency
	}
	if tx.Amount != "" {
		amount, err := decimal.NewFromString(tx.Amount.String())
		if err != nil {
			return nil, provider.NewError(provider.FailureValidationMismatch, "MALFORMED_AMOUNT",
				"airtel callback amount is not numeric", tx.Amount.String())
		}
		result.Amount = amount
	}

	return result, nil
}
