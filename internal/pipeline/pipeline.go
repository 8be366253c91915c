package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/insight"
	"github.com/lexiqai/insight-gateway/internal/observability"
	"github.com/lexiqai/insight-gateway/internal/render"
	"github.com/lexiqai/insight-gateway/internal/stt"
	"github.com/lexiqai/insight-gateway/internal/upload"
)

// Pipeline runs one uploaded conversation through transcription and analysis.
// It holds no per-request state, so a single Pipeline serves concurrent requests.
type Pipeline struct {
	store          *upload.Store
	transcriber    stt.Transcriber
	insighter      insight.Insighter
	requestTimeout time.Duration
}

// New creates a pipeline
func New(store *upload.Store, transcriber stt.Transcriber, insighter insight.Insighter, requestTimeout time.Duration) *Pipeline {
	return &Pipeline{
		store:          store,
		transcriber:    transcriber,
		insighter:      insighter,
		requestTimeout: requestTimeout,
	}
}

// Request is one upload to process
type Request struct {
	ID       string
	Filename string
	Body     io.Reader
}

// Outcome is the result of a run and its rendered form
type Outcome struct {
	Result   *conversation.Result
	Response *render.Response
}

// run tracks a single request through the state machine
type run struct {
	result  *conversation.Result
	logger  zerolog.Logger
	metrics *observability.RequestMetrics
	start   time.Time
}

func (r *run) transition(stage conversation.Stage) {
	r.result.Stage = stage
	r.metrics.RecordStage(string(stage))
	r.logger.Debug().Str("stage", string(stage)).Msg("Pipeline stage")
}

func (r *run) fail(err error) {
	var classified *conversation.Error
	if !errors.As(err, &classified) {
		err = conversation.Internal(err)
	}

	kind := conversation.KindOf(err)
	r.result.FailedAt = r.result.Stage
	r.result.Err = err
	r.transition(conversation.StageFailed)
	r.metrics.RecordError(string(kind), string(r.result.FailedAt))

	event := r.logger.Warn()
	if kind == conversation.KindInternal {
		event = r.logger.Error()
	}
	event.Err(err).
		Str("kind", string(kind)).
		Str("failed_at", string(r.result.FailedAt)).
		Dur("elapsed", time.Since(r.start)).
		Msg("Request failed")
}

// Run processes req from receipt to a rendered response. The uploaded file
// is removed before Run returns, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, req Request) *Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	ctx = observability.ContextWithCorrelationID(ctx, req.ID)

	r := &run{
		result:  &conversation.Result{RequestID: req.ID},
		logger:  observability.FromContext(ctx),
		metrics: observability.NewRequestMetrics(),
		start:   time.Now(),
	}
	r.transition(conversation.StageReceived)

	p.process(ctx, r, req)
	if r.result.Err != nil {
		r.metrics.RecordEnd("failed")
		return &Outcome{Result: r.result, Response: render.Payload(r.result)}
	}

	r.transition(conversation.StageRendering)
	resp := render.Payload(r.result)
	r.transition(conversation.StageCompleted)
	r.metrics.RecordEnd("completed")

	r.logger.Info().
		Int("speakers", len(r.result.Insights)).
		Str("source", string(r.result.Transcript.Source)).
		Dur("elapsed", time.Since(r.start)).
		Msg("Request completed")

	return &Outcome{Result: r.result, Response: resp}
}

func (p *Pipeline) process(ctx context.Context, r *run, req Request) {
	r.transition(conversation.StageValidating)
	tf, err := p.store.Save(req.Filename, req.Body)
	if err != nil {
		r.fail(err)
		return
	}
	defer func() {
		if err := tf.Release(); err != nil {
			r.logger.Error().Err(err).Str("path", tf.Path()).Msg("Failed to release upload")
		}
	}()

	up := tf.Conversation
	r.result.Upload = &up
	r.metrics.RecordUpload(string(up.MediaType), up.Size)
	r.logger.Info().
		Str("filename", up.Filename).
		Str("media_type", string(up.MediaType)).
		Str("content_type", up.ContentType).
		Int64("size_bytes", up.Size).
		Msg("Upload accepted")

	var transcript *conversation.Transcript
	switch up.MediaType {
	case conversation.MediaText:
		text, err := tf.ReadText()
		if err != nil {
			r.fail(err)
			return
		}
		transcript = conversation.TextTranscript(text)

	case conversation.MediaAudio:
		r.transition(conversation.StageTranscribing)
		transcript, err = p.transcribe(ctx, tf)
		if err != nil {
			r.fail(err)
			return
		}

	default:
		r.fail(conversation.InvalidUpload("unsupported file type", "upload "+upload.AcceptedTypes))
		return
	}
	r.result.Transcript = transcript

	r.transition(conversation.StageAnalyzing)
	insights, err := p.insighter.Analyze(ctx, transcript)
	if err != nil {
		r.fail(err)
		return
	}
	for _, in := range insights {
		if !transcript.HasSpeaker(in.Speaker) {
			r.fail(conversation.AnalysisParseError("analysis names unknown speaker %q", in.Speaker))
			return
		}
	}
	r.result.Insights = insights
}

func (p *Pipeline) transcribe(ctx context.Context, tf *upload.TempFile) (*conversation.Transcript, error) {
	f, err := tf.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	transcript, err := p.transcriber.Transcribe(ctx, f, tf.Conversation.ContentType)
	if err != nil {
		if !errors.Is(err, conversation.ErrTranscriptionUnavailable) {
			err = conversation.TranscriptionUnavailable(err)
		}
		return nil, err
	}
	if transcript == nil || transcript.Text == "" {
		return nil, conversation.TranscriptionUnavailable(errors.New("empty transcript"))
	}
	return transcript, nil
}
