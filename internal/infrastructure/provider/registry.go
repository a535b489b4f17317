package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/provider"
	airtelProvider "github.com/elimupay/billing/internal/infrastructure/provider/airtel"
	mpesaProvider "github.com/elimupay/billing/internal/infrastructure/provider/mpesa"
)

// Registry holds the configured gateways keyed by provider name. Unknown
// providers are an explicit error, never a fallback.
type Registry struct {
	gateways map[string]provider.Gateway
	logger   *zap.Logger
}

// NewRegistry builds gateways from the active provider accounts
func NewRegistry(accounts []*model.ProviderAccount, callbackBaseURL string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		gateways: make(map[string]provider.Gateway),
		logger:   logger,
	}

	for _, account := range accounts {
		gw, err := r.buildGateway(account, callbackBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s gateway: %w", account.Provider, err)
		}

		r.gateways[account.Provider] = gw
		logger.Info("Registered payment gateway",
			zap.String("provider", account.Provider),
			zap.String("environment", account.Environment))
	}

	return r, nil
}

func (r *Registry) buildGateway(account *model.ProviderAccount, callbackBaseURL string) (provider.Gateway, error) {
	switch account.Provider {
	case "mpesa":
		if account.MpesaConsumerKey == "" || account.MpesaConsumerSecret == "" {
			return nil, fmt.Errorf("mpesa consumer credentials not configured")
		}
		if account.MpesaShortcode == "" || account.MpesaPasskey == "" {
			return nil, fmt.Errorf("mpesa shortcode/passkey not configured")
		}
		return mpesaProvider.NewGateway(
			account.MpesaConsumerKey,
			account.MpesaConsumerSecret,
			account.MpesaShortcode,
			account.MpesaPasskey,
			account.Environment,
			callbackBaseURL+"/webhooks/mpesa",
			r.logger,
		), nil
	case "airtel":
		if account.AirtelClientID == "" || account.AirtelClientSecret == "" {
			return nil, fmt.Errorf("airtel client credentials not configured")
		}
		return airtelProvider.NewGateway(
			account.AirtelClientID,
			account.AirtelClientSecret,
			account.Environment,
			r.logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", account.Provider)
	}
}

// Get returns the gateway for a provider name
func (r *Registry) Get(name string) (provider.Gateway, error) {
	gw, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
	return gw, nil
}

// Names returns the registered provider names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}
