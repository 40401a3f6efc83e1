package analysis

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// ErrNoContext means the document index returned nothing for a cell.
var ErrNoContext = eris.New("analysis: no context documents found")

// RetrievalError wraps a failure to build a cell's context.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval: " + e.Err.Error() }
func (e *RetrievalError) Unwrap() error { return e.Err }

// CompletionError wraps a failed model call.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return "completion: " + e.Err.Error() }
func (e *CompletionError) Unwrap() error { return e.Err }

// MalformedModelOutputError means the model answered but the answer could
// not be parsed. Raw keeps the unparsed text.
type MalformedModelOutputError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *MalformedModelOutputError) Error() string {
	if e.Err != nil {
		return "malformed model output: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed model output: " + e.Reason
}

func (e *MalformedModelOutputError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed result write.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persistence: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError rejects a run before any cell is evaluated.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Reason }

// KindOf maps err to the failure kind recorded for a cell. A deadline or
// cancellation inside a call is a failure of that call; only the caller knows
// whether the run itself was cancelled.
func KindOf(err error) model.FailureKind {
	var (
		retrieval   *RetrievalError
		completion  *CompletionError
		malformed   *MalformedModelOutputError
		persistence *PersistenceError
	)
	switch {
	case errors.As(err, &retrieval):
		return model.FailureRetrieval
	case errors.As(err, &malformed):
		return model.FailureMalformedOutput
	case errors.As(err, &completion):
		return model.FailureCompletion
	case errors.As(err, &persistence):
		return model.FailurePersistence
	default:
		return model.FailureCompletion
	}
}

// RawOutputOf returns the unparsed model text carried by err, if any.
func RawOutputOf(err error) string {
	var malformed *MalformedModelOutputError
	if errors.As(err, &malformed) {
		return malformed.Raw
	}
	return ""
}
