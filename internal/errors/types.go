package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNotConfigured ErrorType = "not_configured"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeCompile       ErrorType = "compile"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeGeneration    ErrorType = "generation"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeInternal      ErrorType = "internal"
)

// Stable error codes.
const (
	CodeReportNotFound        = "REPORT_NOT_FOUND"
	CodeTemplateNotFound      = "TEMPLATE_NOT_FOUND"
	CodeMetadataNotFound      = "METADATA_NOT_FOUND"
	CodeInvalidParameters     = "INVALID_PARAMETERS"
	CodeUnsupportedFormat     = "UNSUPPORTED_FORMAT"
	CodeTemplateSyntax        = "TEMPLATE_SYNTAX"
	CodeTemplateRead          = "TEMPLATE_READ"
	CodeGenerationTimeout     = "GENERATION_TIMEOUT"
	CodeInterrupted           = "INTERRUPTED"
	CodeFillFailed            = "FILL_FAILED"
	CodeExportFailed          = "EXPORT_FAILED"
	CodeSchemaUnavailable     = "SCHEMA_UNAVAILABLE"
	CodeConnectionUnavailable = "CONNECTION_UNAVAILABLE"
	CodeInvalidConfig         = "INVALID_CONFIG"
)

// ReportError is a structured error type with context.
type ReportError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	ReportID    string
	FilePath    string
	Recoverable bool
}

// Sentinels for errors.Is. A sentinel without a code matches every error of
// its type.
var (
	ErrNotConfigured = &ReportError{Type: ErrorTypeNotConfigured}
	ErrNotFound      = &ReportError{Type: ErrorTypeNotFound}
	ErrValidation    = &ReportError{Type: ErrorTypeValidation}
	ErrCompile       = &ReportError{Type: ErrorTypeCompile}
	ErrTimeout       = &ReportError{Type: ErrorTypeTimeout}
	ErrGeneration    = &ReportError{Type: ErrorTypeGeneration}
	ErrInterrupted   = &ReportError{Type: ErrorTypeGeneration, Code: CodeInterrupted}
)

// Error implements the error interface.
func (e *ReportError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.ReportID != "" {
		parts = append(parts, "report:"+e.ReportID)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else {
		parts = append(parts, string(e.Type))
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison. Types must match; codes must match unless
// the target carries none.
func (e *ReportError) Is(target error) bool {
	var t *ReportError
	if !errors.As(target, &t) {
		return false
	}

	if e.Type != t.Type {
		return false
	}

	return t.Code == "" || e.Code == t.Code
}

// WithContext adds context information to the error.
func (e *ReportError) WithContext(key string, value interface{}) *ReportError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithReport attaches the report id.
func (e *ReportError) WithReport(id string) *ReportError {
	e.ReportID = id

	return e
}

// WithFile attaches the file involved.
func (e *ReportError) WithFile(path string) *ReportError {
	e.FilePath = path

	return e
}

// Error creation functions

// NewNotFoundError creates a not-found error.
func NewNotFoundError(code, message string) *ReportError {
	return &ReportError{
		Type:        ErrorTypeNotFound,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ReportError {
	return &ReportError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewCompileError creates a compile error.
func NewCompileError(code, message string, cause error) *ReportError {
	return &ReportError{
		Type:    ErrorTypeCompile,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string) *ReportError {
	return &ReportError{
		Type:        ErrorTypeTimeout,
		Code:        CodeGenerationTimeout,
		Message:     message,
		Recoverable: true,
	}
}

// NewGenerationError creates a generation error wrapping cause.
func NewGenerationError(code, message string, cause error) *ReportError {
	return &ReportError{
		Type:    ErrorTypeGeneration,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInterruptedError creates the error returned when a job is cancelled
// while waiting for capacity.
func NewInterruptedError(cause error) *ReportError {
	return &ReportError{
		Type:    ErrorTypeGeneration,
		Code:    CodeInterrupted,
		Message: "generation interrupted",
		Cause:   cause,
	}
}

// NewNotConfiguredError creates an error for a missing collaborator.
func NewNotConfiguredError(code, message string) *ReportError {
	return &ReportError{
		Type:    ErrorTypeNotConfigured,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an IO error.
func NewIOError(code, message string, cause error) *ReportError {
	return &ReportError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ReportError {
	return &ReportError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps err as a ReportError, keeping the report and file context of an
// inner ReportError.
func Wrap(err error, errType ErrorType, code, message string) *ReportError {
	if err == nil {
		return nil
	}

	out := &ReportError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}

	var re *ReportError
	if errors.As(err, &re) {
		out.ReportID = re.ReportID
		out.FilePath = re.FilePath
		out.Recoverable = re.Recoverable
	}

	return out
}

// Predicates

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsCompile reports whether err is a compile error.
func IsCompile(err error) bool { return errors.Is(err, ErrCompile) }

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsGeneration reports whether err is a generation error, interrupted ones included.
func IsGeneration(err error) bool { return errors.Is(err, ErrGeneration) }

// IsInterrupted reports whether err is an interrupted generation.
func IsInterrupted(err error) bool { return errors.Is(err, ErrInterrupted) }

// IsNotConfigured reports whether err signals a missing collaborator.
func IsNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Recoverable
	}

	return false
}

// GetErrorType returns the type of err, or internal for foreign errors.
func GetErrorType(err error) ErrorType {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Type
	}

	return ErrorTypeInternal
}
