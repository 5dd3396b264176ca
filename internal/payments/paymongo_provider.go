package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RLASH18/abg-prime-v2/internal/platform/textutil"
)

const (
	// ProviderPayMongo is the manager key for the PayMongo gateway.
	ProviderPayMongo = "paymongo"

	defaultPayMongoBaseURL = "https://api.paymongo.com/v1"
	defaultPayMongoTimeout = 15 * time.Second
	maxPayMongoResponse    = 1 << 20
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PayMongoProviderConfig configures the PayMongoProvider.
type PayMongoProviderConfig struct {
	SecretKey  string
	BaseURL    string
	HTTPClient HTTPDoer
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// PayMongoProvider creates hosted checkout sessions through the PayMongo REST API.
type PayMongoProvider struct {
	secretKey string
	baseURL   string
	client    HTTPDoer
	logger    func(context.Context, string, map[string]any)
}

// NewPayMongoProvider constructs a PayMongo Provider using the given configuration.
func NewPayMongoProvider(cfg PayMongoProviderConfig) (*PayMongoProvider, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("paymongo: secret key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPayMongoBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultPayMongoTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PayMongoProvider{secretKey: secret, baseURL: baseURL, client: client, logger: logger}, nil
}

// PayMongoMethodTypes maps a storefront payment method to PayMongo payment_method_types.
func PayMongoMethodTypes(method string) []string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "gcash":
		return []string{"gcash"}
	case "bank_transfer":
		return []string{"paymaya"}
	default:
		return []string{"gcash", "paymaya"}
	}
}

type payMongoLineItem struct {
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	Name        string `json:"name"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description,omitempty"`
}

type payMongoSessionAttributes struct {
	SendEmailReceipt   bool               `json:"send_email_receipt"`
	ShowDescription    bool               `json:"show_description"`
	ShowLineItems      bool               `json:"show_line_items"`
	LineItems          []payMongoLineItem `json:"line_items"`
	PaymentMethodTypes []string           `json:"payment_method_types"`
	SuccessURL         string             `json:"success_url"`
	CancelURL          string             `json:"cancel_url"`
	Description        string             `json:"description,omitempty"`
	ReferenceNumber    string             `json:"reference_number,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
}

type payMongoSessionRequest struct {
	Data struct {
		Attributes payMongoSessionAttributes `json:"attributes"`
	} `json:"data"`
}

type payMongoSessionResponse struct {
	Data struct {
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// CreateCheckoutSession posts a checkout session and returns its hosted checkout URL.
func (p *PayMongoProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("paymongo: provider is nil")
	}

	currency := strings.ToUpper(defaultString(req.Currency, "PHP"))
	var body payMongoSessionRequest
	attrs := &body.Data.Attributes
	attrs.ShowDescription = true
	attrs.ShowLineItems = true
	attrs.SuccessURL = req.SuccessURL
	attrs.CancelURL = req.CancelURL
	attrs.Description = req.Description
	attrs.Metadata = textutil.NormalizeStringMap(req.Metadata)
	attrs.PaymentMethodTypes = req.PaymentMethodTypes
	if len(attrs.PaymentMethodTypes) == 0 {
		attrs.PaymentMethodTypes = PayMongoMethodTypes("")
	}
	for _, item := range req.Items {
		attrs.LineItems = append(attrs.LineItems, payMongoLineItem{
			Currency:    strings.ToUpper(defaultString(item.Currency, currency)),
			Amount:      item.Amount,
			Name:        defaultString(item.Name, "Product"),
			Quantity:    max64(item.Quantity, 1),
			Description: item.Description,
		})
	}
	if len(attrs.LineItems) == 0 {
		attrs.LineItems = []payMongoLineItem{{Currency: currency, Amount: req.Amount, Name: "Order", Quantity: 1}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return CheckoutSession{}, &SessionError{Provider: ProviderPayMongo, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/checkout_sessions", bytes.NewReader(payload))
	if err != nil {
		return CheckoutSession{}, &SessionError{Provider: ProviderPayMongo, Err: err}
	}
	httpReq.SetBasicAuth(p.secretKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CheckoutSession{}, &SessionError{Provider: ProviderPayMongo, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPayMongoResponse))
	if err != nil {
		return CheckoutSession{}, &SessionError{Provider: ProviderPayMongo, StatusCode: resp.StatusCode, Err: err}
	}

	var decoded payMongoSessionResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sessErr := &SessionError{Provider: ProviderPayMongo, StatusCode: resp.StatusCode}
		if decodeErr == nil && len(decoded.Errors) > 0 {
			sessErr.Message = decoded.Errors[0].Detail
		}
		p.logger(ctx, "payments.paymongo.session.rejected", map[string]any{
			"status": resp.StatusCode,
			"error":  sessErr.Error(),
		})
		return CheckoutSession{}, sessErr
	}
	if decodeErr != nil {
		return CheckoutSession{}, &SessionError{Provider: ProviderPayMongo, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	checkoutURL, _ := decoded.Data.Attributes["checkout_url"].(string)
	if decoded.Data.ID == "" || checkoutURL == "" {
		return CheckoutSession{}, &SessionError{Provider: ProviderPayMongo, StatusCode: resp.StatusCode, Message: "response missing session id or checkout url"}
	}

	p.logger(ctx, "payments.paymongo.session.created", map[string]any{
		"sessionId": decoded.Data.ID,
		"items":     len(attrs.LineItems),
	})

	return CheckoutSession{
		ID:          decoded.Data.ID,
		Provider:    ProviderPayMongo,
		RedirectURL: checkoutURL,
		Raw:         decoded.Data.Attributes,
	}, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
