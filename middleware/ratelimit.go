package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// RateLimit ограничивает частоту запросов пользователя.
// Ставится после AuthMiddleware; без пользователя ключом служит адрес клиента.
// Ошибка хранилища лимитов не блокирует запрос.
func RateLimit(limiter utils.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _, err := UserFromContext(r.Context())
			if err != nil {
				key = "ip:" + r.RemoteAddr
			}

			allowed, retryAfter, err := limiter.Consume(r.Context(), key)
			if err != nil {
				utils.LogError("rate limiter unavailable for %s: %v", key, err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
