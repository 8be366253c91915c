// Package render formats pipeline results for clients. It holds no business
// logic: every function is a pure mapping from a result to bytes.
package render

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"seconds": func(f *float64) string {
		if f == nil {
			return ""
		}
		return fmt.Sprintf("%.1fs", *f)
	},
}).ParseFS(templateFS, "templates/*.html"))

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// SpeakerView pairs a speaker's utterances with its insight
type SpeakerView struct {
	Speaker    string                           `json:"speaker"`
	Sentiment  conversation.Sentiment           `json:"sentiment"`
	Insight    string                           `json:"insight"`
	Utterances []conversation.TranscriptSegment `json:"utterances,omitempty"`
}

// ErrorView is the client-facing part of a failure
type ErrorView struct {
	Kind     conversation.Kind `json:"kind"`
	Message  string            `json:"message"`
	Guidance string            `json:"guidance,omitempty"`
}

// Response is the JSON document returned for an upload
type Response struct {
	Status     string                             `json:"status"`
	RequestID  string                             `json:"request_id,omitempty"`
	Upload     *conversation.UploadedConversation `json:"upload,omitempty"`
	Speakers   []SpeakerView                      `json:"speakers,omitempty"`
	Transcript *conversation.Transcript           `json:"transcript,omitempty"`
	Error      *ErrorView                         `json:"error,omitempty"`
}

// Payload builds the response for a result
func Payload(r *conversation.Result) *Response {
	resp := &Response{
		Status:     StatusOK,
		RequestID:  r.RequestID,
		Upload:     r.Upload,
		Transcript: r.Transcript,
	}

	if r.Err != nil {
		resp.Status = StatusError
		resp.Error = errorView(r.Err)
		return resp
	}

	for _, in := range r.Insights {
		resp.Speakers = append(resp.Speakers, SpeakerView{
			Speaker:    in.Speaker,
			Sentiment:  in.Sentiment,
			Insight:    in.Insight,
			Utterances: r.Transcript.Utterances(in.Speaker),
		})
	}
	return resp
}

// ErrorPayload builds the response for a failure outside the pipeline
func ErrorPayload(requestID string, err error) *Response {
	return &Response{Status: StatusError, RequestID: requestID, Error: errorView(err)}
}

func errorView(err error) *ErrorView {
	if e, ok := asError(err); ok && e.Kind != conversation.KindInternal {
		return &ErrorView{Kind: e.Kind, Message: e.Message, Guidance: e.Guidance}
	}
	// Unclassified causes are not shown to clients
	return &ErrorView{
		Kind:     conversation.KindInternal,
		Message:  "internal error",
		Guidance: "try again; if the problem persists contact the operator with the request id",
	}
}

func asError(err error) (*conversation.Error, bool) {
	var e *conversation.Error
	ok := errors.As(err, &e)
	return e, ok
}

// JSON writes resp with the given status code
func JSON(w http.ResponseWriter, status int, resp any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}

// HTML renders the result page
func HTML(w io.Writer, resp *Response) error {
	return templates.ExecuteTemplate(w, "result.html", resp)
}

// IndexPage renders the upload form
func IndexPage(w io.Writer, maxUploadMB int) error {
	return templates.ExecuteTemplate(w, "index.html", struct{ MaxUploadMB int }{maxUploadMB})
}

// LegacyResponse is the {status, msg} shape used by the ajax upload form
type LegacyResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

// Legacy converts resp into the ajax shape. On success msg is the plain-text analysis.
func Legacy(resp *Response) LegacyResponse {
	if resp.Error != nil {
		msg := resp.Error.Message
		if resp.Error.Guidance != "" {
			msg += ". " + resp.Error.Guidance
		}
		return LegacyResponse{Status: StatusError, Msg: msg}
	}
	return LegacyResponse{Status: StatusOK, Msg: PlainText(resp)}
}

// PlainText renders one "[Speaker] (sentiment) insight" line per speaker
func PlainText(resp *Response) string {
	var b strings.Builder
	for i, s := range resp.Speakers {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] (%s) %s", s.Speaker, s.Sentiment, s.Insight)
	}
	return b.String()
}
