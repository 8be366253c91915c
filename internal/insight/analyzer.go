package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lexiqai/insight-gateway/internal/config"
	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/observability"
	"github.com/lexiqai/insight-gateway/internal/resilience"
)

// Analyzer implements Insighter on top of a Completer
type Analyzer struct {
	completer      Completer
	prompts        *PromptBuilder
	timeout        time.Duration
	retry          *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
}

// NewAnalyzer creates an analyzer that sends prompts to completer
func NewAnalyzer(completer Completer, prompts *PromptBuilder, cfg *config.Config) *Analyzer {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.AnalysisMaxAttempts
	if cfg.RetryInitialBackoff > 0 {
		retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	}

	circuitBreaker := resilience.NewCircuitBreaker(
		completer.Name(),
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

	return &Analyzer{
		completer:      completer,
		prompts:        prompts,
		timeout:        cfg.AnalysisTimeoutDuration(),
		retry:          retry,
		circuitBreaker: circuitBreaker,
	}
}

// Analyze implements Insighter
func (a *Analyzer) Analyze(ctx context.Context, transcript *conversation.Transcript) ([]conversation.SpeakerInsight, error) {
	if transcript == nil || strings.TrimSpace(transcript.Text) == "" {
		return nil, conversation.AnalysisParseError("transcript is empty")
	}

	logger := observability.FromContext(ctx)
	messages := a.prompts.Build(transcript)
	provider := a.completer.Name()

	var reply string
	attempt := 0
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		start := time.Now()
		err := a.circuitBreaker.Call(func() error {
			var callErr error
			reply, callErr = a.completer.Complete(callCtx, messages)
			return callErr
		}, countsAgainstProvider)
		observability.ObserveProvider(provider, start, err == nil)

		if err != nil {
			if !errors.Is(err, resilience.ErrCircuitOpen) && countsAgainstProvider(err) {
				observability.IncrementCircuitBreakerFailures(provider)
			}
			logger.Warn().
				Err(err).
				Str("provider", provider).
				Int("attempt", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("Analysis request failed")
		}
		return err
	}, a.retry, isRetryable)

	if err != nil {
		return nil, conversation.AnalysisUnavailable(err)
	}

	insights, err := Parse(reply, transcript)
	if err != nil {
		logger.Error().
			Err(err).
			Str("provider", provider).
			Int("reply_length", len(reply)).
			Msg("Failed to parse analysis response")
		return nil, err
	}

	logger.Info().
		Str("provider", provider).
		Int("speakers", len(insights)).
		Int("attempts", attempt).
		Msg("Analysis completed")

	return insights, nil
}

// Ready reports whether the provider is currently accepting requests
func (a *Analyzer) Ready(context.Context) (bool, error) {
	if a.circuitBreaker.GetState() == resilience.StateOpen {
		return false, fmt.Errorf("%s circuit breaker is open", a.circuitBreaker.Name())
	}
	return true, nil
}

// A caller giving up is not a provider fault
func countsAgainstProvider(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Transport failures and per-attempt timeouts are worth another attempt
func isRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return resilience.IsRetryableNetworkError(err) || errors.Is(err, context.DeadlineExceeded)
}
