package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPayMongoProviderCreatesSession(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout_sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "sk_test_123" || pass != "" {
			t.Errorf("expected basic auth with secret key, got %q/%q", user, pass)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"cs_abc","attributes":{"checkout_url":"https://checkout.paymongo.com/cs_abc"}}}`))
	}))
	defer server.Close()

	provider, err := NewPayMongoProvider(PayMongoProviderConfig{SecretKey: "sk_test_123", BaseURL: server.URL + "/v1/", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:           "PHP",
		Description:        "Order #0042",
		SuccessURL:         "https://shop.test/payment/success?order_id=42",
		CancelURL:          "https://shop.test/payment/failed?order_id=42",
		PaymentMethodTypes: PayMongoMethodTypes("bank_transfer"),
		Metadata:           map[string]string{"order_id": "42", "user_id": "7"},
		Items: []CheckoutLineItem{
			{Name: "Claw Hammer", Quantity: 2, Amount: 35050},
		},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "cs_abc" || session.RedirectURL != "https://checkout.paymongo.com/cs_abc" {
		t.Fatalf("unexpected session %#v", session)
	}

	attrs := captured["data"].(map[string]any)["attributes"].(map[string]any)
	if attrs["description"] != "Order #0042" {
		t.Fatalf("unexpected description %v", attrs["description"])
	}
	methods := attrs["payment_method_types"].([]any)
	if len(methods) != 1 || methods[0] != "paymaya" {
		t.Fatalf("expected paymaya for bank transfer, got %v", methods)
	}
	line := attrs["line_items"].([]any)[0].(map[string]any)
	if line["amount"].(float64) != 35050 || line["currency"] != "PHP" || line["quantity"].(float64) != 2 {
		t.Fatalf("unexpected line item %v", line)
	}
	if attrs["success_url"] != "https://shop.test/payment/success?order_id=42" {
		t.Fatalf("unexpected success url %v", attrs["success_url"])
	}
}

func TestPayMongoProviderSurfacesErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"parameter_below_minimum","detail":"amount cannot be less than 2000."}]}`))
	}))
	defer server.Close()

	provider, err := NewPayMongoProvider(PayMongoProviderConfig{SecretKey: "sk", BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Items: []CheckoutLineItem{{Name: "Nail", Quantity: 1, Amount: 100}}})
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
	var sessErr *SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected SessionError, got %T", err)
	}
	if sessErr.StatusCode != http.StatusBadRequest || sessErr.Message != "amount cannot be less than 2000." {
		t.Fatalf("unexpected session error %#v", sessErr)
	}
}

func TestPayMongoProviderRejectsIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"cs_abc","attributes":{}}}`))
	}))
	defer server.Close()

	provider, err := NewPayMongoProvider(PayMongoProviderConfig{SecretKey: "sk", BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{}); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
}

func TestPayMongoMethodTypes(t *testing.T) {
	cases := map[string][]string{
		"gcash":         {"gcash"},
		"bank_transfer": {"paymaya"},
		"":              {"gcash", "paymaya"},
	}
	for method, want := range cases {
		got := PayMongoMethodTypes(method)
		if len(got) != len(want) {
			t.Fatalf("%q: expected %v got %v", method, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%q: expected %v got %v", method, want, got)
			}
		}
	}
}
