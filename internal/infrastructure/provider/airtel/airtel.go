package airtel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/provider"
)

const (
	sandboxBaseURL    = "https://openapisandbox.airtel.africa"
	productionBaseURL = "https://openapi.airtel.africa"

	tokenRefreshMargin = 5 * time.Minute
)

// Gateway implements USSD push collections against the Airtel Money
// Open API
type Gateway struct {
	clientID     string
	clientSecret string
	country      string
	currency     string
	baseURL      string
	client       *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewGateway creates an Airtel Money gateway for the given credentials
func NewGateway(clientID, clientSecret, environment string, logger *zap.Logger) *Gateway {
	baseURL := sandboxBaseURL
	if environment == "production" {
		baseURL = productionBaseURL
	}

	return &Gateway{
		clientID:     clientID,
		clientSecret: clientSecret,
		country:      "KE",
		currency:     "KES",
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// Name returns the provider identifier
func (g *Gateway) Name() string {
	return "airtel"
}

// wirePhone converts a normalized 254XXXXXXXXX number to the national
// 0XXXXXXXXX format the Airtel API expects as msisdn.
func wirePhone(phone string) (string, error) {
	cleaned := strings.NewReplacer("+", "", " ", "", "-", "").Replace(strings.TrimSpace(phone))

	switch {
	case strings.HasPrefix(cleaned, "254") && len(cleaned) == 12:
		return "0" + cleaned[3:], nil
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
		return cleaned, nil
	case len(cleaned) == 9:
		return "0" + cleaned, nil
	}

	return "", fmt.Errorf("invalid mobile number: %s", phone)
}

// getAccessToken returns a cached OAuth token. The fetch runs outside the
// mutex; token issuance is idempotent, so concurrent refreshes never
// queue payments behind the wire call.
func (g *Gateway) getAccessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.accessToken != "" && time.Now().Before(g.tokenExpiry.Add(-tokenRefreshMargin)) {
		token := g.accessToken
		g.mu.Unlock()
		return token, nil
	}
	g.mu.Unlock()

	token, expiry, err := g.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.accessToken = token
	g.tokenExpiry = expiry
	g.mu.Unlock()

	return token, nil
}

func (g *Gateway) fetchToken(ctx context.Context) (string, time.Time, error) {
	body := map[string]string{
		"client_id":     g.clientID,
		"client_secret": g.clientSecret,
		"grant_type":    "client_credentials",
	}
	jsonBody, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/auth/oauth2/token", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", time.Time{}, provider.NewError(provider.FailureNetwork, "REQUEST_ERROR", "failed to create token request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("Airtel token request failed", zap.Error(err))
		return "", time.Time{}, provider.NewError(provider.FailureNetwork, "TOKEN_REQUEST_FAILED", "airtel token request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, provider.NewError(provider.FailureNetwork, "RESPONSE_ERROR", "failed to read token response", err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		g.logger.Error("Airtel token request rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return "", time.Time{}, provider.NewError(provider.FailureAuthentication, "TOKEN_REJECTED", "airtel rejected credentials", string(respBody))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		return "", time.Time{}, provider.NewError(provider.FailureAuthentication, "TOKEN_PARSE_ERROR", "failed to parse token response", string(respBody))
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}

	return tokenResp.AccessToken, time.Now().Add(expiresIn), nil
}

// InitiatePayment sends a USSD collection push to the payer's phone. The
// caller's reference doubles as the transaction id Airtel echoes back in
// the callback.
func (g *Gateway) InitiatePayment(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResponse, error) {
	msisdn, err := wirePhone(req.PhoneNumber)
	if err != nil {
		return nil, provider.NewError(provider.FailureProviderRejected, "INVALID_PHONE", "phone number not usable for collection", err.Error())
	}

	body := map[string]interface{}{
		"reference": req.Description,
		"subscriber": map[string]string{
			"country":  g.country,
			"currency": g.currency,
			"msisdn":   msisdn,
		},
		"transaction": map[string]interface{}{
			"amount":   req.Amount.IntPart(),
			"country":  g.country,
			"currency": g.currency,
			"id":       req.Reference,
		},
	}

	respBody, err := g.do(ctx, http.MethodPost, "/merchant/v1/payments/", body)
	if err != nil {
		return nil, err
	}

	var payResp struct {
		Status struct {
			Code    string `json:"code"`
			Success bool   `json:"success"`
			Message string `json:"message"`
		} `json:"status"`
	}
	if err := json.Unmarshal(respBody, &payResp); err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "PARSE_ERROR", "failed to parse collection response", err.Error())
	}

	if !payResp.Status.Success {
		g.logger.Warn("Airtel collection rejected",
			zap.String("code", payResp.Status.Code),
			zap.String("message", payResp.Status.Message))
		return nil, provider.NewError(provider.FailureProviderRejected, payResp.Status.Code, payResp.Status.Message, "")
	}

	g.logger.Info("Airtel collection accepted",
		zap.String("reference", req.Reference))

	return &provider.InitiateResponse{
		ProviderRef: req.Reference,
		NextAction:  "await_ussd_pin",
	}, nil
}

// QueryStatus looks up a collection by the transaction id it was
// initiated with
func (g *Gateway) QueryStatus(ctx context.Context, providerRef string) (*provider.StatusResponse, error) {
	respBody, err := g.do(ctx, http.MethodGet, "/standard/v1/payments/"+providerRef, nil)
	if err != nil {
		return nil, err
	}

	var statusResp struct {
		Data struct {
			Transaction struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"transaction"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &statusResp); err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "PARSE_ERROR", "failed to parse status response", err.Error())
	}

	tx := statusResp.Data.Transaction
	status := provider.StatusPending
	switch tx.Status {
	case "TS", "SUCCESS":
		status = provider.StatusSucceeded
	case "TF", "FAILED":
		status = provider.StatusFailed
	}

	return &provider.StatusResponse{
		Status:     status,
		ResultCode: tx.Status,
		ResultDesc: tx.Message,
	}, nil
}

// Refund returns funds by airtel_money_id
func (g *Gateway) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*provider.RefundResponse, error) {
	body := map[string]interface{}{
		"transaction": map[string]string{
			"airtel_money_id": providerRef,
		},
	}

	respBody, err := g.do(ctx, http.MethodPost, "/standard/v1/payments/refund", body)
	if err != nil {
		return nil, err
	}

	var refundResp struct {
		Status struct {
			Code    string `json:"code"`
			Success bool   `json:"success"`
			Message string `json:"message"`
		} `json:"status"`
		Data struct {
			Transaction struct {
				AirtelMoneyID string `json:"airtel_money_id"`
				Status        string `json:"status"`
			} `json:"transaction"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &refundResp); err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "PARSE_ERROR", "failed to parse refund response", err.Error())
	}

	if !refundResp.Status.Success {
		return nil, provider.NewError(provider.FailureProviderRejected, refundResp.Status.Code, refundResp.Status.Message, "")
	}

	return &provider.RefundResponse{
		ProviderRefundID: refundResp.Data.Transaction.AirtelMoneyID,
		Status:           refundResp.Data.Transaction.Status,
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body map[string]interface{}) ([]byte, error) {
	token, err := g.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, provider.NewError(provider.FailureNetwork, "MARSHAL_ERROR", "failed to prepare request", err.Error())
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "REQUEST_ERROR", "failed to create request", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Country", g.country)
	req.Header.Set("X-Currency", g.currency)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("Airtel API request failed",
			zap.String("path", path),
			zap.Error(err))
		return nil, provider.NewError(provider.FailureNetwork, "API_ERROR", "airtel request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "RESPONSE_ERROR", "failed to read response", err.Error())
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		g.mu.Lock()
		g.accessToken = ""
		g.mu.Unlock()
		return nil, provider.NewError(provider.FailureAuthentication, "UNAUTHORIZED", "airtel rejected token", string(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error("Airtel API request rejected",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return nil, provider.NewError(provider.FailureProviderRejected, fmt.Sprintf("HTTP_%d", resp.StatusCode), "airtel rejected request", string(respBody))
	}

	return respBody, nil
}
