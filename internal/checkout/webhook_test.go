package checkout

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palla98/store-backend/internal/order"
	"github.com/palla98/store-backend/internal/payment"
)

func resultGateway(res *payment.Result) *fakeGateway {
	return &fakeGateway{
		parseFunc: func(payload []byte, header http.Header) (*payment.Result, error) {
			return res, nil
		},
	}
}

func unpaidOrder(id string) *order.Order {
	return &order.Order{ID: id, CustomerID: "user-1", Status: order.StatusUnpaid}
}

func TestHandleWebhookEvent_MarksPaid(t *testing.T) {
	orders := newFakeOrderRepo(unpaidOrder("o1"))
	gw := resultGateway(&payment.Result{
		Provider: "stripe", EventID: "evt_1", OrderID: "o1", Status: order.StatusPaid,
	})
	svc, pub, processed := newTestService(newFakeCartStore(), orders, gw)

	err := svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{})

	require.NoError(t, err)
	o, err := orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, []string{"o1:paid"}, pub.paymentUpdates)

	seen, err := processed.WasProcessed(context.Background(), "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHandleWebhookEvent_MarksFailed(t *testing.T) {
	orders := newFakeOrderRepo(unpaidOrder("o1"))
	gw := resultGateway(&payment.Result{
		Provider: "stripe", EventID: "evt_1", OrderID: "o1", Status: order.StatusFailed,
	})
	svc, _, _ := newTestService(newFakeCartStore(), orders, gw)

	require.NoError(t, svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{}))

	o, err := orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, o.Status)
}

func TestHandleWebhookEvent_DuplicateDeliveryIsNoOp(t *testing.T) {
	orders := newFakeOrderRepo(unpaidOrder("o1"))
	gw := resultGateway(&payment.Result{
		Provider: "stripe", EventID: "evt_1", OrderID: "o1", Status: order.StatusPaid,
	})
	svc, pub, _ := newTestService(newFakeCartStore(), orders, gw)

	require.NoError(t, svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{}))
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{}))

	o, err := orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	// Second delivery published nothing.
	assert.Len(t, pub.paymentUpdates, 1)
}

func TestHandleWebhookEvent_FailedAfterPaidIsNoOp(t *testing.T) {
	orders := newFakeOrderRepo(&order.Order{ID: "o1", CustomerID: "user-1", Status: order.StatusPaid})
	gw := resultGateway(&payment.Result{
		Provider: "stripe", EventID: "evt_2", OrderID: "o1", Status: order.StatusFailed,
	})
	svc, pub, _ := newTestService(newFakeCartStore(), orders, gw)

	require.NoError(t, svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{}))

	o, err := orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Empty(t, pub.paymentUpdates)
}

func TestHandleWebhookEvent_IrrelevantEventAccepted(t *testing.T) {
	orders := newFakeOrderRepo(unpaidOrder("o1"))
	svc, pub, _ := newTestService(newFakeCartStore(), orders, resultGateway(nil))

	require.NoError(t, svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{}))

	o, err := orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusUnpaid, o.Status)
	assert.Empty(t, pub.paymentUpdates)
}

func TestHandleWebhookEvent_BadSignaturePropagates(t *testing.T) {
	orders := newFakeOrderRepo(unpaidOrder("o1"))
	gw := &fakeGateway{
		parseFunc: func(payload []byte, header http.Header) (*payment.Result, error) {
			return nil, payment.ErrPayment
		},
	}
	svc, _, _ := newTestService(newFakeCartStore(), orders, gw)

	err := svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{})

	assert.ErrorIs(t, err, payment.ErrPayment)
	o, getErr := orders.GetByID(context.Background(), "o1")
	require.NoError(t, getErr)
	assert.Equal(t, order.StatusUnpaid, o.Status)
}

func TestHandleWebhookEvent_UnknownOrderIsError(t *testing.T) {
	gw := resultGateway(&payment.Result{
		Provider: "stripe", EventID: "evt_3", OrderID: "ghost", Status: order.StatusPaid,
	})
	svc, _, _ := newTestService(newFakeCartStore(), newFakeOrderRepo(), gw)

	err := svc.HandleWebhookEvent(context.Background(), []byte("{}"), http.Header{})

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}
