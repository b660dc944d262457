package common

import (
	"context"
	"errors"
	"fmt"
)

// Error codes for the classification pipeline
const (
	ErrCodeStartup           = "STARTUP_FAILED"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeDecoding          = "DECODING_FAILED"
	ErrCodeFeatureExtraction = "FEATURE_EXTRACTION_FAILED"
	ErrCodeSchemaMismatch    = "SCHEMA_MISMATCH"
	ErrCodeModelInference    = "MODEL_INFERENCE_FAILED"
	ErrCodeTimeout           = "TIMEOUT"
)

// ClassifyError represents a failure anywhere between loading artifacts and
// producing a label
type ClassifyError struct {
	Code    string `json:"code"`
	Stage   Stage  `json:"stage,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *ClassifyError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClassifyError) Unwrap() error {
	return e.Cause
}

// Is matches any ClassifyError carrying the same code, so callers can write
// errors.Is(err, common.ErrDecode)
func (e *ClassifyError) Is(target error) bool {
	t, ok := target.(*ClassifyError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Fatal reports whether the error indicates a broken deployment rather than a
// bad request
func (e *ClassifyError) Fatal() bool {
	switch e.Code {
	case ErrCodeStartup, ErrCodeSchemaMismatch, ErrCodeModelInference:
		return true
	}
	return false
}

// Sentinels for errors.Is
var (
	ErrStartup           = &ClassifyError{Code: ErrCodeStartup, Message: "startup failed"}
	ErrUnsupportedFormat = &ClassifyError{Code: ErrCodeUnsupportedFormat, Message: "unsupported format"}
	ErrDecode            = &ClassifyError{Code: ErrCodeDecoding, Message: "decoding failed"}
	ErrFeatureExtraction = &ClassifyError{Code: ErrCodeFeatureExtraction, Message: "feature extraction failed"}
	ErrSchemaMismatch    = &ClassifyError{Code: ErrCodeSchemaMismatch, Message: "schema mismatch"}
	ErrModelInference    = &ClassifyError{Code: ErrCodeModelInference, Message: "model inference failed"}
	ErrTimeout           = &ClassifyError{Code: ErrCodeTimeout, Message: "timed out"}
)

// NewClassifyError creates a new pipeline error
func NewClassifyError(code, message string, cause error) *ClassifyError {
	return &ClassifyError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewStartupError(message string, cause error) *ClassifyError {
	return NewClassifyError(ErrCodeStartup, message, cause)
}

func NewUnsupportedFormatError(message string, cause error) *ClassifyError {
	return NewClassifyError(ErrCodeUnsupportedFormat, message, cause)
}

func NewDecodeError(message string, cause error) *ClassifyError {
	return NewClassifyError(ErrCodeDecoding, message, cause)
}

func NewFeatureExtractionError(message string, cause error) *ClassifyError {
	return NewClassifyError(ErrCodeFeatureExtraction, message, cause)
}

func NewSchemaMismatchError(message string, cause error) *ClassifyError {
	return NewClassifyError(ErrCodeSchemaMismatch, message, cause)
}

func NewModelInferenceError(message string, cause error) *ClassifyError {
	return NewClassifyError(ErrCodeModelInference, message, cause)
}

func NewTimeoutError(message string, cause error) *ClassifyError {
	return NewClassifyError(ErrCodeTimeout, message, cause)
}

// FromContext converts a context error into the pipeline taxonomy. A passed
// deadline becomes a TimeoutError; plain cancellation is returned wrapped.
func FromContext(ctx context.Context, stage Stage) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e := NewTimeoutError(fmt.Sprintf("request exceeded its deadline while %s", stage.Activity()), err)
		e.Stage = stage
		return e
	}
	return fmt.Errorf("request cancelled while %s: %w", stage.Activity(), err)
}

// AsClassifyError extracts the pipeline error from err, if any
func AsClassifyError(err error) (*ClassifyError, bool) {
	var ce *ClassifyError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrorCode returns the pipeline code of err, or "UNKNOWN"
func ErrorCode(err error) string {
	if ce, ok := AsClassifyError(err); ok {
		return ce.Code
	}
	return "UNKNOWN"
}

// IsFatal reports whether err should stop the service
func IsFatal(err error) bool {
	if ce, ok := AsClassifyError(err); ok {
		return ce.Fatal()
	}
	return false
}

// UserMessage renders err as the text shown to whoever uploaded the clip
func UserMessage(err error) string {
	ce, ok := AsClassifyError(err)
	if !ok {
		return fmt.Sprintf("Prediction error: %v", err)
	}

	switch ce.Code {
	case ErrCodeUnsupportedFormat:
		return "Invalid file format. Please upload a .wav or .mp3 file."
	case ErrCodeDecoding:
		return fmt.Sprintf("Could not decode audio: %v", ce)
	case ErrCodeFeatureExtraction:
		return fmt.Sprintf("Could not extract features from audio: %v", ce)
	case ErrCodeTimeout:
		return "Analysis took too long. Please try a shorter clip."
	case ErrCodeStartup:
		return fmt.Sprintf("Model or scaler could not be loaded: %v", ce)
	default:
		return fmt.Sprintf("Prediction error: %v", ce)
	}
}
