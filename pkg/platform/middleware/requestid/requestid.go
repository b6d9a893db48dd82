// Package requestid assigns a correlation ID to every request. Incoming
// X-Request-ID headers are honored so IDs survive proxy hops.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"custos/pkg/requestcontext"
)

// Header is the correlation header read from and echoed to clients.
const Header = "X-Request-ID"

// Middleware stores the request ID in the context and echoes it back on the
// response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
