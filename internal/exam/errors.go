package exam

import (
	"errors"
	"fmt"
)

// ErrorType categorizes pipeline failures
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeFetchFailure
	ErrorTypeSegmentation
	ErrorTypeExtractionMiss
	ErrorTypeMergeConflict
	ErrorTypeValidation
	ErrorTypeInvalidInput
	ErrorTypeStorage
)

// ErrorSeverity indicates how far a failure propagates
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// PipelineError describes a failure scoped to a document and, optionally, a question
type PipelineError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	DocID       string    `json:"doc_id,omitempty"`
	QNo         string    `json:"q_no,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Err         error     `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	scope := e.DocID
	if e.QNo != "" {
		scope += "/" + e.QNo
	}
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if scope != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Type, scope, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeFetchFailure:
		return "FETCH_FAILURE"
	case ErrorTypeSegmentation:
		return "SEGMENTATION"
	case ErrorTypeExtractionMiss:
		return "EXTRACTION_MISS"
	case ErrorTypeMergeConflict:
		return "MERGE_CONFLICT"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeInvalidInput:
		return "INVALID_INPUT"
	case ErrorTypeStorage:
		return "STORAGE"
	default:
		return "UNKNOWN"
	}
}

// Severity returns the severity level for a given error type
func (et ErrorType) Severity() ErrorSeverity {
	switch et {
	case ErrorTypeSegmentation, ErrorTypeExtractionMiss, ErrorTypeMergeConflict:
		return SeverityWarning
	case ErrorTypeValidation:
		return SeverityInfo
	case ErrorTypeFetchFailure, ErrorTypeInvalidInput:
		return SeverityError
	case ErrorTypeStorage:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// IsRecoverable reports whether a batch may continue with the next document
func (et ErrorType) IsRecoverable() bool {
	return et.Severity() != SeverityFatal
}

// NewPipelineError creates a PipelineError for a document
func NewPipelineError(errorType ErrorType, docID, message string, err error) *PipelineError {
	return &PipelineError{
		Type:        errorType,
		Message:     message,
		DocID:       docID,
		Recoverable: errorType.IsRecoverable(),
		Err:         err,
	}
}

// NewFetchError wraps a network failure for a source document
func NewFetchError(docID, url string, err error) *PipelineError {
	return NewPipelineError(ErrorTypeFetchFailure, docID, "fetch "+url, err)
}

// NewStorageError wraps a failure reading or writing a document's files
func NewStorageError(docID, op string, err error) *PipelineError {
	return NewPipelineError(ErrorTypeStorage, docID, op, err)
}

// NewInputError reports unusable input for a document
func NewInputError(docID, message string) *PipelineError {
	return NewPipelineError(ErrorTypeInvalidInput, docID, message, nil)
}

// WithQuestion scopes the error to a single question
func (e *PipelineError) WithQuestion(qno string) *PipelineError {
	e.QNo = qno
	return e
}

// IsRecoverable reports whether err allows a batch to continue. Errors that
// are not PipelineErrors are treated as document-scoped and recoverable.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}
	return true
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeUnknown
}
