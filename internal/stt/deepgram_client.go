package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/lexiqai/insight-gateway/internal/config"
	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/observability"
	"github.com/lexiqai/insight-gateway/internal/resilience"
)

const providerName = "deepgram"

// streamAPI is the part of the Deepgram prerecorded client we call
type streamAPI interface {
	FromStream(ctx context.Context, src io.Reader, options *interfaces.PreRecordedTranscriptionOptions) (*msginterfaces.PreRecordedResponse, error)
}

// DeepgramClient implements Transcriber using Deepgram's prerecorded API
type DeepgramClient struct {
	api            streamAPI
	options        *interfaces.PreRecordedTranscriptionOptions
	timeout        time.Duration
	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramClient creates a new Deepgram prerecorded client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	listenClient.InitWithDefault()

	c := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})
	return newDeepgramClient(prerecorded.New(c), cfg)
}

func newDeepgramClient(api streamAPI, cfg *config.Config) *DeepgramClient {
	circuitBreaker := resilience.NewCircuitBreaker(
		providerName,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	circuitBreaker.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger := observability.GetLogger()
		logger.Warn().
			Str("service", name).
			Str("state", state.String()).
			Msg("Circuit breaker state changed")
	}

	return &DeepgramClient{
		api: api,
		options: &interfaces.PreRecordedTranscriptionOptions{
			Model:       cfg.DeepgramModel,
			Language:    cfg.DeepgramLanguage,
			Punctuate:   true,
			SmartFormat: true,
			Utterances:  true,
			Diarize:     true,
		},
		timeout:        cfg.TranscriptionTimeoutDuration(),
		circuitBreaker: circuitBreaker,
	}
}

// Transcribe sends the recording to Deepgram in a single attempt
func (d *DeepgramClient) Transcribe(ctx context.Context, audio io.Reader, contentType string) (*conversation.Transcript, error) {
	logger := observability.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	var res *msginterfaces.PreRecordedResponse
	err := d.circuitBreaker.Call(func() error {
		var callErr error
		res, callErr = d.api.FromStream(ctx, audio, d.options)
		return callErr
	}, countsAgainstProvider)
	observability.ObserveProvider(providerName, start, err == nil)

	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) && countsAgainstProvider(err) {
			observability.IncrementCircuitBreakerFailures(providerName)
		}
		logger.Error().
			Err(err).
			Str("content_type", contentType).
			Dur("elapsed", time.Since(start)).
			Msg("Deepgram transcription failed")
		return nil, conversation.TranscriptionUnavailable(err)
	}

	transcript, err := convertResult(res)
	if err != nil {
		logger.Error().Err(err).Msg("Deepgram returned an unusable transcript")
		return nil, conversation.TranscriptionUnavailable(err)
	}

	logger.Info().
		Int("segments", len(transcript.Segments)).
		Int("speakers", len(transcript.Speakers())).
		Dur("elapsed", time.Since(start)).
		Msg("Transcription completed")

	return transcript, nil
}

// Ready reports whether the provider is currently accepting requests
func (d *DeepgramClient) Ready(context.Context) (bool, error) {
	if d.circuitBreaker.GetState() == resilience.StateOpen {
		return false, fmt.Errorf("deepgram circuit breaker is open")
	}
	return true, nil
}

// A caller giving up is not a provider fault
func countsAgainstProvider(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// convertResult builds a transcript from diarized utterances, falling back to
// the paragraph or plain channel transcript when no utterances are present.
// Without diarization the whole recording is attributed to SingleSpeaker.
func convertResult(res *msginterfaces.PreRecordedResponse) (*conversation.Transcript, error) {
	if res == nil || res.Results == nil {
		return nil, errors.New("response has no results")
	}

	t := &conversation.Transcript{Source: conversation.SourceTranscription}

	var lines []string
	for _, u := range res.Results.Utterances {
		text := strings.TrimSpace(u.Transcript)
		if text == "" {
			continue
		}

		speaker := conversation.SingleSpeaker
		if u.Speaker != nil {
			speaker = SpeakerLabel(*u.Speaker)
		}
		start, end := u.Start, u.End
		t.Segments = append(t.Segments, conversation.TranscriptSegment{Speaker: speaker, Text: text, Start: &start, End: &end})
		lines = append(lines, speaker+": "+text)
	}

	if len(t.Segments) > 0 {
		t.Text = strings.Join(lines, "\n")
		return t, nil
	}

	for _, ch := range res.Results.Channels {
		for _, alt := range ch.Alternatives {
			text := alt.Transcript
			if alt.Paragraphs != nil && strings.TrimSpace(alt.Paragraphs.Transcript) != "" {
				text = alt.Paragraphs.Transcript
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			t.Text = conversation.SingleSpeaker + ": " + text
			t.Segments = []conversation.TranscriptSegment{{Speaker: conversation.SingleSpeaker, Text: text}}
			return t, nil
		}
	}

	return nil, errors.New("no speech recognized")
}

// SpeakerLabel converts Deepgram's zero-based speaker index into a label
func SpeakerLabel(index int) string {
	return fmt.Sprintf("Speaker_%d", index+1)
}
