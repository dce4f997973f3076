package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const merchantIDKey ctxKey = "merchant/id"

// MerchantHeader carries the merchant on whose behalf a request is made.
const MerchantHeader = "X-Merchant-ID"

// WithMerchantID stores the merchant identifier on the provided context.
func WithMerchantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, merchantIDKey, id)
}

// MerchantID extracts the merchant identifier from the context if present.
func MerchantID(ctx context.Context) (string, bool) {
	v := ctx.Value(merchantIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// MerchantMiddleware copies the merchant header onto the request context.
func MerchantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(MerchantHeader)); id != "" {
			r = r.WithContext(WithMerchantID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
