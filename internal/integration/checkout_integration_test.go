package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/palla98/store-backend/internal/cart"
	"github.com/palla98/store-backend/internal/catalog"
	"github.com/palla98/store-backend/internal/checkout"
	"github.com/palla98/store-backend/internal/dedup"
	"github.com/palla98/store-backend/internal/events"
	httpapi "github.com/palla98/store-backend/internal/http"
	"github.com/palla98/store-backend/internal/order"
	"github.com/palla98/store-backend/internal/payment"
	"github.com/palla98/store-backend/internal/testutil"
)

const (
	testCustomer      = "user-1"
	testWebhookSecret = "whsec_integration"
)

func TestCheckoutIntegration(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	conn, _ := testutil.StartPostgres(t)
	rabbitConn := testutil.StartRabbitMQ(t)

	stripeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cs_test_1","url":"https://checkout.stripe.com/pay/cs_test_1"}`)
	}))
	defer stripeSrv.Close()

	publisher, err := events.NewPublisher(rabbitConn)
	require.NoError(t, err)
	defer publisher.Close()

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		APIBase:       stripeSrv.URL,
		SecretKey:     "sk_test_integration",
		WebhookSecret: testWebhookSecret,
		SiteURL:       "https://shop.example.com",
		Timeout:       5 * time.Second,
	})

	logger := log.New(io.Discard, "", log.LstdFlags)
	productRepo := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := order.NewRepository(conn)
	processedRepo := dedup.NewRepository(conn)

	cartSvc := cart.NewService(cartRepo, productRepo)
	checkoutSvc := checkout.NewService(cartRepo, orderRepo, gateway, publisher, processedRepo, logger)

	router := httpapi.NewRouter(
		httpapi.NewProductHandler(productRepo),
		httpapi.NewCartHandler(cartSvc),
		httpapi.NewOrderHandler(orderRepo),
		httpapi.NewCheckoutHandler(checkoutSvc, logger),
	)
	srv := httptest.NewServer(router)
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	// Seed the catalog and fill a cart over the API.
	keyboardID := createProduct(ctx, t, client, srv.URL, "Keyboard", 10.00)
	mouseID := createProduct(ctx, t, client, srv.URL, "Mouse", 5.50)

	cartID := createCart(ctx, t, client, srv.URL)
	addItem(ctx, t, client, srv.URL, cartID, keyboardID)
	addItem(ctx, t, client, srv.URL, cartID, keyboardID)
	addItem(ctx, t, client, srv.URL, cartID, mouseID)

	// Checkout: order persisted, session created, cart cleared.
	var res checkout.Result
	resp := doRequest(ctx, t, client, http.MethodPost, srv.URL+"/api/checkout",
		map[string]string{"cartId": cartID}, testCustomer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &res)
	require.NotEmpty(t, res.OrderID)
	require.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", res.CheckoutURL)

	o := getOrder(ctx, t, client, srv.URL, res.OrderID)
	require.Equal(t, order.StatusUnpaid, o.Status)
	require.Len(t, o.Items, 2)
	require.InDelta(t, 25.50, o.TotalPrice(), 0.001)

	emptied := getCart(ctx, t, client, srv.URL, cartID)
	require.Empty(t, emptied["items"])

	created := waitForMessage[events.OrderCreated](ctx, t, rabbitConn, events.OrderCreatedQueue)
	require.Equal(t, res.OrderID, created.OrderID)
	require.Equal(t, testCustomer, created.CustomerID)
	require.InDelta(t, 25.50, created.TotalAmount, 0.001)

	// Provider confirms payment asynchronously.
	payload := paymentEvent(t, "evt_1", "payment_intent.succeeded", res.OrderID)
	resp = postWebhook(ctx, t, client, srv.URL, payload, signHeader(payload, time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	o = getOrder(ctx, t, client, srv.URL, res.OrderID)
	require.Equal(t, order.StatusPaid, o.Status)

	updated := waitForMessage[events.OrderPaymentUpdated](ctx, t, rabbitConn, events.OrderPaymentUpdatedQueue)
	require.Equal(t, res.OrderID, updated.OrderID)
	require.Equal(t, string(order.StatusPaid), updated.Status)

	// Re-delivery is accepted but changes nothing.
	resp = postWebhook(ctx, t, client, srv.URL, payload, signHeader(payload, time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	o = getOrder(ctx, t, client, srv.URL, res.OrderID)
	require.Equal(t, order.StatusPaid, o.Status)

	// A contradictory late event loses against the settled state.
	late := paymentEvent(t, "evt_2", "payment_intent.payment_failed", res.OrderID)
	resp = postWebhook(ctx, t, client, srv.URL, late, signHeader(late, time.Now()))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	o = getOrder(ctx, t, client, srv.URL, res.OrderID)
	require.Equal(t, order.StatusPaid, o.Status)

	// A forged signature is refused.
	resp = postWebhook(ctx, t, client, srv.URL, payload, "t=1,v1=deadbeef")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func createProduct(ctx context.Context, t *testing.T, client *http.Client, baseURL, name string, price float64) string {
	t.Helper()
	resp := doRequest(ctx, t, client, http.MethodPost, baseURL+"/api/products",
		map[string]any{"name": name, "price": price}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var p catalog.Product
	decodeBody(t, resp, &p)
	require.NotEmpty(t, p.ID)
	return p.ID
}

func createCart(ctx context.Context, t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	resp := doRequest(ctx, t, client, http.MethodPost, baseURL+"/api/carts/", nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		CartID string `json:"cartId"`
	}
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.CartID)
	return body.CartID
}

func addItem(ctx context.Context, t *testing.T, client *http.Client, baseURL, cartID, productID string) {
	t.Helper()
	resp := doRequest(ctx, t, client, http.MethodPost,
		fmt.Sprintf("%s/api/carts/%s/items", baseURL, cartID),
		map[string]string{"productId": productID}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func getCart(ctx context.Context, t *testing.T, client *http.Client, baseURL, cartID string) map[string]any {
	t.Helper()
	resp := doRequest(ctx, t, client, http.MethodGet,
		fmt.Sprintf("%s/api/carts/%s", baseURL, cartID), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	return body
}

func getOrder(ctx context.Context, t *testing.T, client *http.Client, baseURL, orderID string) *order.Order {
	t.Helper()
	resp := doRequest(ctx, t, client, http.MethodGet,
		fmt.Sprintf("%s/api/orders/%s", baseURL, orderID), nil, testCustomer)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var o order.Order
	decodeBody(t, resp, &o)
	return &o
}

func doRequest(ctx context.Context, t *testing.T, client *http.Client, method, url string, body any, customerID string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if customerID != "" {
		req.Header.Set(httpapi.HeaderCustomerID, customerID)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func postWebhook(ctx context.Context, t *testing.T, client *http.Client, baseURL string, payload []byte, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/checkout/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func paymentEvent(t *testing.T, eventID, eventType, orderID string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{
			"object": map[string]any{
				"metadata": map[string]string{"order_id": orderID},
			},
		},
	})
	require.NoError(t, err)
	return payload
}

func signHeader(payload []byte, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func waitForMessage[T any](ctx context.Context, t *testing.T, conn *amqp.Connection, queue string) T {
	t.Helper()

	var dest T

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.QueueDeclare(queue, true, false, false, false, nil)
	require.NoError(t, err)

	pollCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	backoff := 50 * time.Millisecond
	for {
		select {
		case <-pollCtx.Done():
			t.Fatalf("timed out waiting for message on %s: %v", queue, pollCtx.Err())
		default:
		}

		msg, ok, getErr := ch.Get(queue, true)
		require.NoError(t, getErr)
		if ok {
			require.NoError(t, json.Unmarshal(msg.Body, &dest))
			return dest
		}

		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}
