// Package mock provides test doubles for the insight.Insighter and
// insight.Completer interfaces.
//
// Insighter records the transcript of every Analyze call so tests can check
// exactly what reached the analysis step. Completer replays canned replies in
// order, which lets tests drive insight.Analyzer without a live LLM backend.
package mock

import (
	"context"
	"sync"

	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/insight"
)

// Insighter is a mock implementation of insight.Insighter.
type Insighter struct {
	mu sync.Mutex

	// Insights is returned by Analyze when Err is nil and Func is nil.
	Insights []conversation.SpeakerInsight

	// Err, if non-nil, is returned by Analyze.
	Err error

	// Func, if set, computes the result from the transcript.
	Func func(*conversation.Transcript) ([]conversation.SpeakerInsight, error)

	// Calls records the transcript of every invocation in order.
	Calls []*conversation.Transcript
}

// Analyze records the call and returns Insights, Err.
func (m *Insighter) Analyze(_ context.Context, transcript *conversation.Transcript) ([]conversation.SpeakerInsight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, transcript)
	if m.Func != nil {
		return m.Func(transcript)
	}
	return m.Insights, m.Err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (m *Insighter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// EchoSpeakers returns a Func that gives every transcript speaker a neutral insight.
func EchoSpeakers() func(*conversation.Transcript) ([]conversation.SpeakerInsight, error) {
	return func(t *conversation.Transcript) ([]conversation.SpeakerInsight, error) {
		var out []conversation.SpeakerInsight
		for _, s := range t.Speakers() {
			out = append(out, conversation.SpeakerInsight{
				Speaker:   s,
				Sentiment: conversation.SentimentNeutral,
				Insight:   s + " keeps an even tone.",
			})
		}
		return out, nil
	}
}

// Reply is one canned Completer response.
type Reply struct {
	Text string
	Err  error
}

// Completer is a mock implementation of insight.Completer.
type Completer struct {
	mu sync.Mutex

	// Replies are returned in order; the last one repeats once exhausted.
	Replies []Reply

	// Block makes Complete wait for ctx to be done and return ctx.Err().
	Block bool

	// Calls records the messages of every invocation in order.
	Calls [][]insight.Message
}

// Name implements insight.Completer.
func (c *Completer) Name() string {
	return "mock"
}

// Complete records the call and returns the next Reply.
func (c *Completer) Complete(ctx context.Context, messages []insight.Message) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, messages)
	n := len(c.Calls)
	block := c.Block
	var reply Reply
	if len(c.Replies) > 0 {
		idx := n - 1
		if idx >= len(c.Replies) {
			idx = len(c.Replies) - 1
		}
		reply = c.Replies[idx]
	}
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply.Text, reply.Err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (c *Completer) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Ensure the mocks implement their interfaces at compile time.
var (
	_ insight.Insighter = (*Insighter)(nil)
	_ insight.Completer = (*Completer)(nil)
)
