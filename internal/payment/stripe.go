package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/palla98/store-backend/internal/order"
)

const (
	providerStripe = "stripe"

	signatureHeader = "Stripe-Signature"
	// Re-deliveries can lag, but a signed timestamp older than this is
	// rejected to limit replay.
	signatureTolerance = 5 * time.Minute

	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

type StripeConfig struct {
	APIBase       string
	SecretKey     string
	WebhookSecret string
	SiteURL       string
	Timeout       time.Duration
}

// StripeGateway talks to Stripe Checkout over its REST API and verifies
// inbound webhooks with the pre-shared signing secret.
type StripeGateway struct {
	apiBase       string
	secretKey     string
	webhookSecret string
	siteURL       string
	client        *http.Client
	now           func() time.Time
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StripeGateway{
		apiBase:       strings.TrimSuffix(cfg.APIBase, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		siteURL:       strings.TrimSuffix(cfg.SiteURL, "/"),
		client:        &http.Client{Timeout: timeout},
		now:           time.Now,
	}
}

// CreateCheckoutSession registers a payment session for the order. The order
// id rides along as metadata on both the session and its payment intent, so
// async events can be correlated back.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, o *order.Order) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", g.siteURL+"/checkout-success?orderId="+o.ID)
	form.Set("cancel_url", g.siteURL+"/checkout-cancel")
	form.Set("metadata[order_id]", o.ID)
	form.Set("payment_intent_data[metadata][order_id]", o.ID)

	for i, it := range o.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(it.Quantity))
		form.Set(prefix+"[price_data][currency]", "usd")
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(toCents(it.UnitPrice), 10))
		form.Set(prefix+"[price_data][product_data][name]", it.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.apiBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPayment, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", ErrPayment, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrPayment, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("%w: create session: status %d: %s",
			ErrPayment, resp.StatusCode, apiErr.Error.Message)
	}

	var sess struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrPayment, err)
	}

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhookEvent verifies the signature, then maps the two event kinds
// this system cares about onto a Result. All other authentic events yield
// (nil, nil).
func (g *StripeGateway) ParseWebhookEvent(payload []byte, header http.Header) (*Result, error) {
	if err := g.verifySignature(payload, header.Get(signatureHeader)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayment, err)
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: decode event: %v", ErrPayment, err)
	}

	var status order.Status
	switch event.Type {
	case eventPaymentSucceeded:
		status = order.StatusPaid
	case eventPaymentFailed:
		status = order.StatusFailed
	default:
		return nil, nil
	}

	orderID, err := extractOrderID(event.Data.Object)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayment, err)
	}

	return &Result{
		Provider: providerStripe,
		EventID:  event.ID,
		OrderID:  orderID,
		Status:   status,
	}, nil
}

func extractOrderID(object json.RawMessage) (string, error) {
	var intent struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(object, &intent); err != nil {
		return "", fmt.Errorf("decode payment intent: %v", err)
	}

	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		return "", fmt.Errorf("event has no order_id metadata")
	}
	return orderID, nil
}

// verifySignature checks the Stripe-Signature header: HMAC-SHA256 of
// "<timestamp>.<payload>" with the webhook secret, hex-encoded in one or more
// v1 entries.
func (g *StripeGateway) verifySignature(payload []byte, header string) error {
	if header == "" {
		return fmt.Errorf("missing %s header", signatureHeader)
	}

	var timestamp int64
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("bad signature timestamp")
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(v)
			if err == nil {
				signatures = append(signatures, sig)
			}
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("malformed %s header", signatureHeader)
	}
	if age := g.now().Sub(time.Unix(timestamp, 0)); age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch")
}

func toCents(price float64) int64 {
	return int64(math.Round(price * 100))
}
