package retry

import (
	"errors"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/modelclient"
)

// FailureClass is the outcome of classifying one attempt's failure, used to
// decide whether to retry, escalate, or give up - generalized from a
// provider-error-classification step, extended here to also cover the
// pipeline's own PipelineError taxonomy rather than
// only HTTP-transport failures.
type FailureClass string

const (
	ClassRetryableTransport FailureClass = "retryable_transport" // rate limit, 5xx, timeout: retry same model
	ClassTerminalTransport  FailureClass = "terminal_transport"  // auth, access denied: give up, no retry helps
	ClassContextTooLarge    FailureClass = "context_too_large"   // escalate to a larger-context model
	ClassRetryableContent   FailureClass = "retryable_content"   // anchor_drift, validation_failure: retry with repair prompt
	ClassTerminalContent    FailureClass = "terminal_content"    // config_error, sandbox_violation: give up
)

// Classify inspects an attempt error (which may be a modelclient.Error, a
// model.PipelineError, or a plain error) and returns the class governing
// what the orchestrator does next.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassTerminalContent
	}
	var mcErr modelclient.Error
	if errors.As(err, &mcErr) {
		return classifyTransport(mcErr)
	}
	var perr *model.PipelineError
	if errors.As(err, &perr) {
		return classifyPipeline(perr)
	}
	return ClassTerminalContent
}

func classifyTransport(err modelclient.Error) FailureClass {
	switch err.(type) {
	case *modelclient.ContextLengthError:
		return ClassContextTooLarge
	case *modelclient.AuthenticationError, *modelclient.AccessDeniedError, *modelclient.ConfigurationError:
		return ClassTerminalTransport
	}
	if err.Retryable() {
		return ClassRetryableTransport
	}
	return ClassTerminalTransport
}

func classifyPipeline(perr *model.PipelineError) FailureClass {
	if perr.Recoverable() {
		return ClassRetryableContent
	}
	return ClassTerminalContent
}
