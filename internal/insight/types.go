package insight

import (
	"context"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

// Insighter produces one insight per speaker of a transcript
type Insighter interface {
	// Analyze fails with conversation.AnalysisUnavailable when the provider
	// cannot be reached and conversation.AnalysisParseError when its reply
	// cannot be mapped onto the transcript's speakers.
	Analyze(ctx context.Context, transcript *conversation.Transcript) ([]conversation.SpeakerInsight, error)
}

// Role is the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one provider-neutral chat message
type Message struct {
	Role    Role
	Content string
}

// Completer sends a chat to an LLM backend and returns the reply text
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)

	// Name identifies the backend in logs and metrics
	Name() string
}
