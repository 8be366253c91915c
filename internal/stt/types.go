package stt

import (
	"context"
	"io"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

// Transcriber turns recorded audio into a transcript
type Transcriber interface {
	// Transcribe reads the whole recording from audio. Failures are
	// reported as conversation.TranscriptionUnavailable.
	Transcribe(ctx context.Context, audio io.Reader, contentType string) (*conversation.Transcript, error)
}
