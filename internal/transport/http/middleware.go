package http

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const storeHeader = "X-Store-ID"

// storeID resolves the tenant identifier for a request. How the identifier
// is issued is out of scope here; it arrives as a header and is passed
// explicitly to every service call.
func storeID(r *http.Request) string {
	return r.Header.Get(storeHeader)
}

// RequestLogger logs method, path, status and latency for every request.
func RequestLogger(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
