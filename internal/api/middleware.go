package api

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/observability"
	"github.com/lexiqai/insight-gateway/internal/render"
)

// Recover turns a handler panic into a 500 response
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := w.Header().Get(requestIDHeader)
			logger := observability.WithCorrelationID(requestID)
			logger.Error().
				Str("panic", fmt.Sprint(rec)).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("PANIC handling request")
			observability.RecordError(string(conversation.KindInternal), "api")

			_ = render.JSON(w, http.StatusInternalServerError, render.ErrorPayload(requestID, fmt.Errorf("panic: %v", rec)))
		}()

		next.ServeHTTP(w, r)
	})
}

// NewMux registers the application routes. Operational endpoints are added by the caller.
func NewMux(uploads *UploadHandler, maxUploadMB int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", HandleIndex(maxUploadMB))
	mux.Handle("/upload", uploads)
	return mux
}
