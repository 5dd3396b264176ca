package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// PayMongoSignatureHeader carries the webhook signature.
	PayMongoSignatureHeader = "Paymongo-Signature"
	// PayMongoEventPaymentPaid fires when a checkout session is paid.
	PayMongoEventPaymentPaid = "checkout_session.payment.paid"

	defaultWebhookTolerance = 5 * time.Minute
)

var (
	// ErrInvalidSignature indicates the webhook signature is missing, stale, or wrong.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrInvalidWebhook indicates the webhook body could not be interpreted.
	ErrInvalidWebhook = errors.New("payments: invalid webhook payload")
)

// WebhookVerifier checks PayMongo webhook signatures.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier constructs a verifier. tolerance <= 0 selects five minutes.
func NewWebhookVerifier(secret string, tolerance time.Duration, clock func() time.Time) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = defaultWebhookTolerance
	}
	if clock == nil {
		clock = time.Now
	}
	return &WebhookVerifier{secret: []byte(secret), tolerance: tolerance, now: clock}, nil
}

// Verify validates a header of the form "t=<unix>,te=<test sig>,li=<live sig>" against body.
func (v *WebhookVerifier) Verify(header string, body []byte, livemode bool) error {
	parts := map[string]string{}
	for _, piece := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(piece), "=")
		if ok {
			parts[key] = value
		}
	}

	ts, err := strconv.ParseInt(parts["t"], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSignature)
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	provided := parts["te"]
	if livemode {
		provided = parts["li"]
	}
	if provided == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(parts["t"]))
	mac.Write([]byte("."))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature for body at ts. Used by tests and local tooling.
func (v *WebhookVerifier) Sign(ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookEvent is the subset of a PayMongo event the checkout flow reacts to.
type WebhookEvent struct {
	ID        string
	Type      string
	Livemode  bool
	SessionID string
	PaymentID string
	OrderID   int64
}

type payMongoEvent struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type     string `json:"type"`
			Livemode bool   `json:"livemode"`
			Data     struct {
				ID         string `json:"id"`
				Attributes struct {
					Metadata map[string]json.RawMessage `json:"metadata"`
					Payments []struct {
						ID string `json:"id"`
					} `json:"payments"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseWebhookEvent decodes a PayMongo event body.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var evt payMongoEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	attrs := evt.Data.Attributes
	if attrs.Type == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing event type", ErrInvalidWebhook)
	}

	out := WebhookEvent{
		ID:        evt.Data.ID,
		Type:      attrs.Type,
		Livemode:  attrs.Livemode,
		SessionID: attrs.Data.ID,
	}
	if payments := attrs.Data.Attributes.Payments; len(payments) > 0 {
		out.PaymentID = payments[0].ID
	}
	if raw, ok := attrs.Data.Attributes.Metadata["order_id"]; ok {
		id, err := parseFlexibleID(raw)
		if err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: order_id: %v", ErrInvalidWebhook, err)
		}
		out.OrderID = id
	}
	return out, nil
}

// parseFlexibleID accepts ids encoded as JSON numbers or strings.
func parseFlexibleID(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.Int64()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
