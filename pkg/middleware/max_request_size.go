package middleware

import (
	"net/http"
	apperrors "roombook/pkg/errors"
	httputil "roombook/pkg/http"
	"roombook/pkg/logger"
)

// MaxRequestSize caps request bodies at limit bytes. Declared oversize bodies
// are refused up front; chunked ones fail while being decoded.
func MaxRequestSize(limit int, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > int64(limit) {
				log.Warn("Request body too large",
					"request_id", requestIDFrom(r),
					"content_length", r.ContentLength,
					"limit", limit,
					"path", r.URL.Path,
				)
				_ = httputil.WriteError(w, apperrors.PayloadTooLarge(limit))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, int64(limit))
			next.ServeHTTP(w, r)
		})
	}
}
