// Package api exposes the conversation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/observability"
	"github.com/lexiqai/insight-gateway/internal/pipeline"
	"github.com/lexiqai/insight-gateway/internal/render"
	"github.com/lexiqai/insight-gateway/internal/upload"
)

const (
	// multipartSlack covers boundaries and part headers on top of the file itself
	multipartSlack = 1 << 20

	fileField = "file"
	ajaxField = "__ajax"

	requestIDHeader = "X-Request-ID"
)

// UploadHandler runs uploaded conversations through the pipeline
type UploadHandler struct {
	pipeline *pipeline.Pipeline
	maxBytes int64
}

// NewUploadHandler creates an upload handler accepting files up to maxBytes
func NewUploadHandler(p *pipeline.Pipeline, maxBytes int64) *UploadHandler {
	return &UploadHandler{pipeline: p, maxBytes: maxBytes}
}

// form is what was read from one multipart request
type form struct {
	ajax    bool
	outcome *pipeline.Outcome
}

// ServeHTTP handles POST /upload
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = observability.NewCorrelationID()
	}
	w.Header().Set(requestIDHeader, requestID)
	logger := observability.WithCorrelationID(requestID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartSlack)

	f, err := h.readForm(r.Context(), r, requestID)
	if r.URL.Query().Get(ajaxField) == "true" {
		f.ajax = true
	}

	var resp *render.Response
	if err != nil {
		logger.Warn().Err(err).Str("kind", string(conversation.KindOf(err))).Msg("Rejected upload request")
		observability.RecordError(string(conversation.KindOf(err)), "api")
		resp = render.ErrorPayload(requestID, err)
	} else {
		err = f.outcome.Result.Err
		resp = f.outcome.Response
	}

	respond(w, r, logger, StatusFor(err), f.ajax, resp)
}

// readForm walks the multipart body. The file part is streamed straight into
// the pipeline; remaining parts are still read so a trailing ajax flag is seen.
func (h *UploadHandler) readForm(ctx context.Context, r *http.Request, requestID string) (form, error) {
	var f form

	mr, err := r.MultipartReader()
	if err != nil {
		return f, conversation.InvalidUpload("request is not a multipart form", "submit the upload form with a file field named \"file\"")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if f.outcome != nil {
				// the file was already processed; a broken tail does not change the result
				break
			}
			return f, multipartError(err, h.maxBytes)
		}

		switch part.FormName() {
		case ajaxField:
			f.ajax = readFlag(part)
		case fileField:
			if f.outcome == nil {
				f.outcome = h.pipeline.Run(ctx, pipeline.Request{
					ID:       requestID,
					Filename: part.FileName(),
					Body:     part,
				})
			}
		}
		part.Close()
	}

	if f.outcome == nil {
		return f, conversation.InvalidUpload("no file selected", "choose a text or audio file to upload")
	}
	return f, nil
}

func multipartError(err error, maxBytes int64) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return upload.TooLarge(maxBytes)
	}
	e := conversation.InvalidUpload("malformed multipart body", "submit the upload form again")
	e.Err = err
	return e
}

func readFlag(part *multipart.Part) bool {
	v, _ := io.ReadAll(io.LimitReader(part, 16))
	return strings.EqualFold(strings.TrimSpace(string(v)), "true")
}

func respond(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, status int, ajax bool, resp *render.Response) {
	var err error
	switch {
	case ajax:
		err = render.JSON(w, status, render.Legacy(resp))
	case wantsHTML(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		err = render.HTML(w, resp)
	default:
		err = render.JSON(w, status, resp)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// StatusFor maps a pipeline error to an HTTP status code
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch conversation.KindOf(err) {
	case conversation.KindInvalidUpload:
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			return http.StatusRequestEntityTooLarge
		case errors.Is(err, upload.ErrUnsupportedType):
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case conversation.KindTranscriptionUnavailable:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case conversation.KindAnalysisParseError, conversation.KindAnalysisUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleIndex serves the upload form
func HandleIndex(maxUploadMB int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := render.IndexPage(w, maxUploadMB); err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("Failed to render index page")
		}
	}
}
