package middleware

import (
	"net/http"
)

// MaxBytes limits the request body. Handlers see an error once the limit is exceeded.
func MaxBytes(f http.Handler, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		f.ServeHTTP(w, r)
	}
}
