package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stepacool/cursor-hackathon-submission/utils"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "email"
)

var errNoUser = errors.New("user_id not found in context")

type LoggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *LoggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware логирует запрос и учитывает его в метриках. Тело ответа не логируется.
func LoggingMiddleware(metrics *utils.Metrics) func(http.Handler) http.Handler {
	if metrics == nil {
		metrics = utils.GetMetrics()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Создаем обертку для ResponseWriter
			lrw := &LoggingResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(lrw, r)

			duration := time.Since(start)
			metrics.RecordRequest(duration, lrw.statusCode >= http.StatusInternalServerError)
			utils.LogInfo(
				"request_id=%s method=%s path=%s status=%d duration=%v",
				GetRequestID(r.Context()),
				r.Method,
				r.URL.Path,
				lrw.statusCode,
				duration,
			)
		})
	}
}

// RecoverMiddleware превращает панику обработчика в ответ 500
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.LogError("Panic recovered: request_id=%s %v", GetRequestID(r.Context()), err)
				utils.GetMetrics().RecordCriticalError()
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware проверяет JWT (HS256), выпущенный сервисом авторизации,
// и кладет пользователя в контекст запроса
func AuthMiddleware(jwtKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Получаем токен из заголовка
			tokenString := strings.TrimSpace(r.Header.Get("Authorization"))
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}

			// Убираем префикс "Bearer " если он есть
			if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "Bearer ") {
				tokenString = strings.TrimSpace(tokenString[7:])
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return jwtKey, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				utils.LogDebug("rejected token: %v", err)
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			userID := claimUserID(claims)
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "Invalid user_id in token")
				return
			}
			email, _ := claims["email"].(string)

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, email)))
		})
	}
}

// claimUserID берет user_id (строка или число), иначе sub
func claimUserID(claims jwt.MapClaims) string {
	switch v := claims["user_id"].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		if v > 0 {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	sub, _ := claims.GetSubject()
	return strings.TrimSpace(sub)
}

// WithUser добавляет пользователя в контекст
func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, emailKey, email)
}

// UserFromContext получает информацию о пользователе из контекста
func UserFromContext(ctx context.Context) (string, string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", "", errNoUser
	}
	email, _ := ctx.Value(emailKey).(string)
	return userID, email, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
