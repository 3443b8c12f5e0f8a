package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gurutvapay/checkout-api/internal/pkg/response"
)

// APIKey authenticates merchant requests with the X-Api-Key header
func APIKey(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Api-Key")
			if provided == "" {
				response.Unauthorized(w, "Missing API key")
				return
			}

			for _, key := range keys {
				if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn().
				Str("path", r.URL.Path).
				Str("ip", getClientIP(r)).
				Msg("Rejected request with invalid API key")
			response.Unauthorized(w, "Invalid API key")
		})
	}
}
