package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bitechdev/ModelSpec/pkg/apierror"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
)

const panicMiddlewareMethodName = "PanicMiddleware"

// PanicRecovery recovers panics that escape the handlers, logs them, records
// a metric and answers with the generic internal error envelope.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rcv := recover(); rcv != nil {
				metrics.GetProvider().RecordPanic(panicMiddlewareMethodName)
				err := logger.HandlePanic(panicMiddlewareMethodName, rcv)
				logger.CaptureError(r.Context(), err, map[string]interface{}{"path": r.URL.Path})

				body, _ := json.Marshal(map[string][]common.ErrorEntry{
					"errors": apierror.Internal(err, false, "").Entries,
				})
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				if _, werr := w.Write(body); werr != nil {
					logger.Warn("Failed to write panic response: %v", werr)
				}
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Chain wraps h so the first middleware is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func writeJSONError(w http.ResponseWriter, status int, errText, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"errors":[{"error":%q,"message":%q}]}`, errText, message)
}
