package httpapi

import (
	"context"
	"net/http"
	"strings"
)

// HeaderCustomerID carries the customer identity resolved by the gateway
// after token verification. This service treats the value as opaque.
const HeaderCustomerID = "X-User-Id"

type ctxKey string

const ctxCustomerID ctxKey = "customer_id"

// RequireCustomer rejects requests without a resolved customer identity and
// stores it in the request context.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customerID := strings.TrimSpace(r.Header.Get(HeaderCustomerID))
		if customerID == "" {
			writeError(w, http.StatusUnauthorized, "missing customer identity")
			return
		}

		ctx := context.WithValue(r.Context(), ctxCustomerID, customerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func CustomerID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxCustomerID).(string); ok {
		return v
	}
	return ""
}
