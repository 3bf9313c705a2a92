package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/Ariya-Dice/tansoo/internal/service"
	"github.com/Ariya-Dice/tansoo/pkg/httputil"
	"github.com/Ariya-Dice/tansoo/pkg/logger"
	"github.com/Ariya-Dice/tansoo/pkg/middleware"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// RequireSession reads the X-Session-ID header the front end generates per
// shopper and stores it in the request context. Requests without a valid
// session id are rejected with 400.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(middleware.SessionIDHeader))
		if err := service.ValidateSessionID(id); err != nil {
			httputil.WriteError(w, r, err, nil)
			return
		}
		ctx := context.WithValue(r.Context(), sessionIDKey, id)
		ctx = logger.WithSessionID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
