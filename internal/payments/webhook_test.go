package payments

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const paidEvent = `{"data":{"id":"evt_1","type":"event","attributes":{"type":"checkout_session.payment.paid","livemode":false,
"data":{"id":"cs_abc","type":"checkout_session","attributes":{"metadata":{"order_id":"42","user_id":7},"payments":[{"id":"pay_1"}]}}}}}`

func TestWebhookVerifier(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	verifier, err := NewWebhookVerifier("whsk_test", 0, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	body := []byte(paidEvent)
	sig := verifier.Sign(now, body)

	header := fmt.Sprintf("t=%d,te=%s,li=", now.Unix(), sig)
	if err := verifier.Verify(header, body, false); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := verifier.Verify(header, body, true); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected live signature to be required in livemode, got %v", err)
	}
	if err := verifier.Verify(header, append(body, ' '), false); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected tampered body to fail, got %v", err)
	}

	stale := now.Add(-10 * time.Minute)
	staleHeader := fmt.Sprintf("t=%d,te=%s", stale.Unix(), verifier.Sign(stale, body))
	if err := verifier.Verify(staleHeader, body, false); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected stale timestamp to fail, got %v", err)
	}

	if err := verifier.Verify("te=abc", body, false); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected missing timestamp to fail, got %v", err)
	}
}

func TestParseWebhookEvent(t *testing.T) {
	evt, err := ParseWebhookEvent([]byte(paidEvent))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.Type != PayMongoEventPaymentPaid || evt.SessionID != "cs_abc" || evt.PaymentID != "pay_1" || evt.OrderID != 42 {
		t.Fatalf("unexpected event %#v", evt)
	}

	if _, err := ParseWebhookEvent([]byte(`{"data":{}}`)); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook, got %v", err)
	}
}
