package shield

import "net/http"

// MaxBody returns middleware that caps the request body of POST, PUT and
// PATCH requests at maxBytes. Reads past the cap fail, which surfaces as a
// multipart or JSON decode error in the handler. A non-positive maxBytes
// disables the cap.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				switch r.Method {
				case http.MethodPost, http.MethodPut, http.MethodPatch:
					r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
