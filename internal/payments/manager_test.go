package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	calls   int
	lastReq CheckoutSessionRequest
	session CheckoutSession
	err     error
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	f.calls++
	f.lastReq = req
	return f.session, f.err
}

func TestManagerCreateCheckoutSessionUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	paymongo := &fakeProvider{session: CheckoutSession{ID: "cs_paymongo"}}
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_stripe"}}

	mgr, err := NewManager(map[string]Provider{
		ProviderPayMongo: paymongo,
		ProviderStripe:   stripe,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "Stripe"}, CheckoutSessionRequest{Currency: "PHP"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != ProviderStripe {
		t.Fatalf("expected provider stripe, got %q", session.Provider)
	}
	if stripe.calls != 1 || paymongo.calls != 0 {
		t.Fatalf("expected only stripe to be called, got stripe=%d paymongo=%d", stripe.calls, paymongo.calls)
	}
}

func TestManagerRoutesByPaymentMethod(t *testing.T) {
	ctx := context.Background()
	paymongo := &fakeProvider{session: CheckoutSession{ID: "cs_paymongo"}}
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_stripe"}}

	mgr, err := NewManager(
		map[string]Provider{ProviderPayMongo: paymongo, ProviderStripe: stripe},
		WithMethodRoutes(map[string]string{"BANK_TRANSFER": ProviderStripe}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{PaymentMethod: "bank_transfer"}, CheckoutSessionRequest{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != ProviderStripe {
		t.Fatalf("expected bank transfer routed to stripe, got %q", session.Provider)
	}

	session, err = mgr.CreateCheckoutSession(ctx, PaymentContext{PaymentMethod: "gcash"}, CheckoutSessionRequest{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != ProviderPayMongo {
		t.Fatalf("expected gcash to fall back to paymongo default, got %q", session.Provider)
	}
}

func TestManagerPropagatesProviderErrors(t *testing.T) {
	failure := &SessionError{Provider: ProviderPayMongo, StatusCode: 400, Message: "amount is too low"}
	mgr, err := NewManager(map[string]Provider{ProviderPayMongo: &fakeProvider{err: failure}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateCheckoutSession(context.Background(), PaymentContext{}, CheckoutSessionRequest{})
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
	if err.Error() != "paymongo: amount is too low" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{"alpha": &fakeProvider{}, "beta": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "unknown"}, CheckoutSessionRequest{})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
