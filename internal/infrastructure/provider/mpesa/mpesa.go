package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/provider"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	// Daraja bearer tokens live for 3600s; refresh early so an in-flight
	// request never carries a token that expires mid-call.
	tokenRefreshMargin = 5 * time.Minute

	maxAccountReferenceLen = 12
	maxTransactionDescLen  = 13
)

var kenyanMobileRe = regexp.MustCompile(`^2547\d{8}$`)

// Gateway implements STK push collections against the Safaricom Daraja API
type Gateway struct {
	consumerKey    string
	consumerSecret string
	shortcode      string
	passkey        string
	baseURL        string
	callbackURL    string
	client         *http.Client
	logger         *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewGateway creates an M-Pesa gateway for the given credentials
func NewGateway(consumerKey, consumerSecret, shortcode, passkey, environment, callbackURL string, logger *zap.Logger) *Gateway {
	baseURL := sandboxBaseURL
	if environment == "production" {
		baseURL = productionBaseURL
	}

	return &Gateway{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		shortcode:      shortcode,
		passkey:        passkey,
		baseURL:        baseURL,
		callbackURL:    callbackURL,
		client:         &http.Client{Timeout: 30 * time.Second},
		logger:         logger,
	}
}

// Name returns the provider identifier
func (g *Gateway) Name() string {
	return "mpesa"
}

// NormalizePhone converts Kenyan mobile numbers to the 2547XXXXXXXX wire
// format Daraja requires. Accepts 07..., 7..., +254... and 254... input.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.NewReplacer("+", "", " ", "", "-", "").Replace(strings.TrimSpace(phone))

	switch {
	case strings.HasPrefix(cleaned, "07") && len(cleaned) == 10:
		cleaned = "254" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7") && len(cleaned) == 9:
		cleaned = "254" + cleaned
	}

	if !kenyanMobileRe.MatchString(cleaned) {
		return "", fmt.Errorf("invalid Kenyan mobile number: %s", phone)
	}

	return cleaned, nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// getAccessToken returns a cached OAuth token, fetching a fresh one when
// the cached token is within the refresh margin of expiry. The fetch runs
// outside the mutex; token issuance is idempotent, so two concurrent
// refreshes cost one extra request instead of queueing every payment
// behind the wire call.
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

// fetchToken requests a fresh bearer token from Daraja
func (g *Gateway) fetchToken(ctx context.Context) (string, time.Time, error) {
	url := g.baseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", time.Time{}, provider.NewError(provider.FailureNetwork, "REQUEST_ERROR", "failed to create token request", err.Error())
	}

	auth := base64.StdEncoding.EncodeToString([]byte(g.consumerKey + ":" + g.consumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("M-Pesa token request failed", zap.Error(err))
		return "", time.Time{}, provider.NewError(provider.FailureNetwork, "TOKEN_REQUEST_FAILED", "daraja token request failed", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, provider.NewError(provider.FailureNetwork, "RESPONSE_ERROR", "failed to read token response", err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		g.logger.Error("M-Pesa token request rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)))
		return "", time.Time{}, provider.NewError(provider.FailureAuthentication, "TOKEN_REJECTED", "daraja rejected credentials", string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		return "", time.Time{}, provider.NewError(provider.FailureAuthentication, "TOKEN_PARSE_ERROR", "failed to parse token response", string(body))
	}

	return tokenResp.AccessToken, time.Now().Add(time.Hour), nil
}

// stkPassword builds the Lipa Na M-Pesa password for the given timestamp
func (g *Gateway) stkPassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(g.shortcode + g.passkey + timestamp))
}

// InitiatePayment sends an STK push to the payer's phone
func (g *Gateway) InitiatePayment(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResponse, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, provider.NewError(provider.FailureProviderRejected, "INVALID_PHONE", "phone number not usable for STK push", err.Error())
	}

	token, err := g.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]interface{}{
		"BusinessShortCode": g.shortcode,
		"Password":          g.stkPassword(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount.IntPart(),
		"PartyA":            phone,
		"PartyB":            g.shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       g.callbackURL,
		"AccountReference":  truncate(req.Reference, maxAccountReferenceLen),
		"TransactionDesc":   truncate(req.Description, maxTransactionDescLen),
	}

	respBody, err := g.post(ctx, "/mpesa/stkpush/v1/processrequest", token, body)
	if err != nil {
		return nil, err
	}

	var stkResp struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	if err := json.Unmarshal(respBody, &stkResp); err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "PARSE_ERROR", "failed to parse STK response", err.Error())
	}

	if stkResp.ResponseCode != "0" {
		g.logger.Warn("M-Pesa STK push rejected",
			zap.String("response_code", stkResp.ResponseCode),
			zap.String("description", stkResp.ResponseDescription))
		return nil, provider.NewError(provider.FailureProviderRejected, stkResp.ResponseCode, stkResp.ResponseDescription, "")
	}

	g.logger.Info("M-Pesa STK push accepted",
		zap.String("checkout_request_id", stkResp.CheckoutRequestID),
		zap.String("merchant_request_id", stkResp.MerchantRequestID))

	return &provider.InitiateResponse{
		ProviderRef:       stkResp.CheckoutRequestID,
		CheckoutRequestID: stkResp.CheckoutRequestID,
		MerchantRequestID: stkResp.MerchantRequestID,
		NextAction:        "await_stk_pin",
	}, nil
}

// QueryStatus looks up the outcome of an STK push by CheckoutRequestID
func (g *Gateway) QueryStatus(ctx context.Context, providerRef string) (*provider.StatusResponse, error) {
	token, err := g.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]interface{}{
		"BusinessShortCode": g.shortcode,
		"Password":          g.stkPassword(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": providerRef,
	}

	respBody, err := g.post(ctx, "/mpesa/stkpushquery/v1/query", token, body)
	if err != nil {
		return nil, err
	}

	var queryResp struct {
		ResultCode string `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	if err := json.Unmarshal(respBody, &queryResp); err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "PARSE_ERROR", "failed to parse query response", err.Error())
	}

	status := provider.StatusFailed
	switch queryResp.ResultCode {
	case "0":
		status = provider.StatusSucceeded
	case "1037":
		// request still awaiting the payer's PIN
		status = provider.StatusPending
	}

	return &provider.StatusResponse{
		Status:     status,
		ResultCode: queryResp.ResultCode,
		ResultDesc: queryResp.ResultDesc,
	}, nil
}

// Refund reverses a settled transaction by receipt number
func (g *Gateway) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*provider.RefundResponse, error) {
	token, err := g.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"Initiator":              g.shortcode,
		"CommandID":              "TransactionReversal",
		"TransactionID":          providerRef,
		"Amount":                 amount.IntPart(),
		"ReceiverParty":          g.shortcode,
		"RecieverIdentifierType": "11",
		"ResultURL":              g.callbackURL,
		"QueueTimeOutURL":        g.callbackURL,
		"Remarks":                "Refund",
	}

	respBody, err := g.post(ctx, "/mpesa/reversal/v1/request", token, body)
	if err != nil {
		return nil, err
	}

	var revResp struct {
		ConversationID      string `json:"ConversationID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	}
	if err := json.Unmarshal(respBody, &revResp); err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "PARSE_ERROR", "failed to parse reversal response", err.Error())
	}

	if revResp.ResponseCode != "0" {
		return nil, provider.NewError(provider.FailureProviderRejected, revResp.ResponseCode, revResp.ResponseDescription, "")
	}

	return &provider.RefundResponse{
		ProviderRefundID: revResp.ConversationID,
		Status:           "pending",
	}, nil
}

func (g *Gateway) post(ctx context.Context, path, token string, body map[string]interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "MARSHAL_ERROR", "failed to prepare request", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "REQUEST_ERROR", "failed to create request", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("M-Pesa API request failed",
			zap.String("path", path),
			zap.Error(err))
		return nil, provider.NewError(provider.FailureNetwork, "API_ERROR", "daraja request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(provider.FailureNetwork, "RESPONSE_ERROR", "failed to read response", err.Error())
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		g.invalidateToken()
		return nil, provider.NewError(provider.FailureAuthentication, "UNAUTHORIZED", "daraja rejected token", string(respBody))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		json.Unmarshal(respBody, &errResp)

		g.logger.Error("M-Pesa API request rejected",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))

		return nil, provider.NewError(provider.FailureProviderRejected, errResp.ErrorCode, errResp.ErrorMessage, string(respBody))
	}

	return respBody, nil
}

func (g *Gateway) invalidateToken() {
	g.mu.Lock()
	g.accessToken = ""
	g.mu.Unlock()
}
