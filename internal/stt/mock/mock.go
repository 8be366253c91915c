// Package mock provides a test double for the stt.Transcriber interface.
//
// Set Transcript or Err before use; every call is recorded in Calls. When
// Block is true, Transcribe waits for its context to end and returns ctx.Err()
// wrapped as a transcription failure, which is how a provider timeout looks to
// callers.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// ContentType is the content type passed to Transcribe.
	ContentType string
	// Audio is everything read from the audio reader.
	Audio []byte
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe when Err is nil.
	Transcript *conversation.Transcript

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Block makes Transcribe wait for ctx to be done.
	Block bool

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Transcribe records the call and returns Transcript, Err.
func (m *Transcriber) Transcribe(ctx context.Context, audio io.Reader, contentType string) (*conversation.Transcript, error) {
	data, _ := io.ReadAll(audio)

	m.mu.Lock()
	m.Calls = append(m.Calls, Call{ContentType: contentType, Audio: data})
	block, transcript, err := m.Block, m.Transcript, m.Err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, conversation.TranscriptionUnavailable(ctx.Err())
	}
	return transcript, err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
