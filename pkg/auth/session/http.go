package session

import (
	"encoding/json"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// HTTPMiddleware authenticates requests with a session bearer token and
// stores the verified [Claims] in the request context. Requests without a
// valid token receive 401 with a JSON error body.
//
//	mux.Handle("GET /users/me", session.HTTPMiddleware(verifier)(meHandler))
func HTTPMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				writeUnauthorized(w, sserr.Unauthorized("missing or invalid authorization header"))
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, token)
			if err != nil {
				slog.DebugContext(ctx, "session: rejected bearer token", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeUnauthorized(w, sserr.FromError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, claims)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, e *sserr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    e.Code.String(),
		"message": e.PublicMessage(),
	})
}
