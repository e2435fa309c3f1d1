package orchestrator

import (
	"strings"

	"github.com/google/uuid"

	"github.com/duckmesh/nlq/internal/query"
)

type Intent string

const (
	IntentChitchat      Intent = "CHITCHAT"
	IntentDataRetrieval Intent = "DATA_RETRIEVAL"
	IntentInsights      Intent = "INSIGHTS"
)

// FallbackIntent is used whenever the classifier answers with something that
// is not one of the three labels.
const FallbackIntent = IntentDataRetrieval

// Query is one incoming question. ID correlates logs for the request.
type Query struct {
	ID   string
	Text string
}

// NewQuery keeps requestID when given, otherwise generates one.
func NewQuery(text, requestID string) Query {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return Query{ID: requestID, Text: text}
}

type AttemptStage string

const (
	StageSynthesis  AttemptStage = "synthesis"
	StageCorrection AttemptStage = "correction"
)

// SQLAttempt is one statement produced inside a correction cycle. Index 0 is
// the synthesized statement, 1..max are corrections.
type SQLAttempt struct {
	SQL   string
	Stage AttemptStage
	Index int
}

// Failure codes for attempts that never reached the database.
const (
	CodeRejected         = "rejected"
	CodeCorrectionFailed = "correction_failed"
	CodeSynthesisFailed  = "synthesis_failed"
)

// Outcome is the tagged result of one attempt: Success with rows, or Failure
// with the error message and code.
type Outcome struct {
	Success   bool
	Columns   []string
	Rows      [][]any
	Truncated bool

	ErrorMessage string
	ErrorCode    string
	Timeout      bool
}

func (o Outcome) RowCount() int {
	return len(o.Rows)
}

func successOutcome(result query.Result) Outcome {
	return Outcome{Success: true, Columns: result.Columns, Rows: result.Rows, Truncated: result.Truncated}
}

func failureOutcome(message, code string) Outcome {
	return Outcome{ErrorMessage: message, ErrorCode: code}
}

func executionFailure(err error) Outcome {
	if execErr := query.AsExecutionError(err); execErr != nil {
		return Outcome{ErrorMessage: execErr.Message, ErrorCode: execErr.Code, Timeout: execErr.Timeout}
	}
	return Outcome{ErrorMessage: err.Error()}
}

// Assessment is the model's verdict on whether the gathered data answers an
// insight question.
type Assessment struct {
	Complete bool
	Hint     string
}

type Round struct {
	Index      int
	Attempt    SQLAttempt
	Outcome    Outcome
	Assessment *Assessment
}

// Result is the terminal artifact of one request: exactly one of Answer or Err
// is set.
type Result struct {
	QueryID string
	Intent  Intent
	Answer  string
	Err     *Error
}

func (r Result) Failed() bool {
	return r.Err != nil
}
