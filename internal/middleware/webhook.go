package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/Strob0t/Fanout/internal/service"
)

// maxWebhookBody bounds the body read for signature verification.
const maxWebhookBody = 1 << 20

// WebhookHMAC verifies the HMAC-SHA256 signature in header against the raw
// request body before calling next. The body is restored for next.
func WebhookHMAC(secret, header string) func(http.Handler) http.Handler {
	signer := service.NewSignatureService()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "webhook secret not configured")
				return
			}
			sig := r.Header.Get(header)
			if sig == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing webhook signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			if len(body) > maxWebhookBody {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !signer.Verify(body, sig, secret) {
				writeJSONError(w, http.StatusForbidden, "invalid webhook signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
