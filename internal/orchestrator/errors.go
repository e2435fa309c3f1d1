package orchestrator

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable failure category surfaced to clients as
// error_code.
type Kind string

const (
	KindClassificationAnomaly Kind = "classification_anomaly"
	KindSQLSynthesisFailure   Kind = "sql_synthesis_failure"
	KindSQLExecutionFailure   Kind = "sql_execution_failure"
	KindCorrectionExhausted   Kind = "correction_exhausted"
	KindInsightRoundExhausted Kind = "insight_rounds_exhausted"
	KindUpstreamTimeout       Kind = "upstream_timeout"
	KindUnrecoverableInternal Kind = "unrecoverable_internal"
	KindLanguageModelFailure  Kind = "language_model_failure"
	KindCancelled             Kind = "cancelled"
)

// User-facing texts. None of them carries SQL, prompts or driver output.
const (
	NoDataAnswer            = "Could not retrieve the requested data due to database errors."
	ChitchatUnavailable     = "I'm sorry, I can't chat right now."
	SynthesisUnavailable    = "I have retrieved the data, but I encountered an issue while formulating the response."
	ClassificationFailed    = "I could not process your request because the language model is unavailable. Please try again later."
	SQLSynthesisUnavailable = "I could not translate your question into a database query. Please try rephrasing it."
	TimeoutDetail           = "The request timed out while waiting for the database or the language model."
	CancelledDetail         = "The request was cancelled before it completed."
	InternalDetail          = "An internal error occurred while processing your request."
)

// Error is a classified request failure. Detail is safe to show to clients;
// Err is the internal cause and only goes to logs.
type Error struct {
	Kind   Kind
	Stage  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Stage)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, stage, detail string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Detail: detail, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return "", false
}
