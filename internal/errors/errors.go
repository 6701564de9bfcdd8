package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeIngestion  ErrorType = "ingestion"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeSchema     ErrorType = "schema"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeWorkflow   ErrorType = "workflow"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// ErrorKind is the failure classification a workflow reports to its observers.
type ErrorKind string

const (
	KindIngestionFailed  ErrorKind = "IngestionFailed"
	KindTransportFailed  ErrorKind = "TransportFailed"
	KindExtractionFailed ErrorKind = "ExtractionFailed"
	KindSchemaInvalid    ErrorKind = "SchemaInvalid"
	KindInvalidInput     ErrorKind = "InvalidInput"
	KindInternal         ErrorKind = "Internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Kind maps the error type onto the workflow failure taxonomy.
func (e *AppError) Kind() ErrorKind {
	switch e.Type {
	case ErrorTypeIngestion:
		return KindIngestionFailed
	case ErrorTypeTransport:
		return KindTransportFailed
	case ErrorTypeExtraction:
		return KindExtractionFailed
	case ErrorTypeSchema:
		return KindSchemaInvalid
	case ErrorTypeValidation, ErrorTypeWorkflow:
		return KindInvalidInput
	default:
		return KindInternal
	}
}

func newAppError(typ ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:    typ,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewIngestionError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeIngestion, code, message, cause)
}

func NewTransportError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeTransport, code, message, cause)
}

// NewExtractionError attaches the offending reply text for diagnostics.
func NewExtractionError(code, message, raw string, cause error) *AppError {
	return newAppError(ErrorTypeExtraction, code, message, cause).WithContext("raw_text", raw)
}

func NewSchemaError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeSchema, code, message, cause)
}

func NewValidationError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, code, message, cause)
}

func NewWorkflowError(code, message string) *AppError {
	return newAppError(ErrorTypeWorkflow, code, message, nil)
}

func NewConfigError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeConfig, code, message, cause)
}

func NewInternalError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, code, message, cause)
}

// WithContext adds context to an error
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf classifies any error. Errors outside the AppError family are Internal.
func KindOf(err error) ErrorKind {
	if appErr, ok := As(err); ok {
		return appErr.Kind()
	}
	return KindInternal
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Logger wraps slog with application-specific methods
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a new structured logger
func NewLogger(level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return &Logger{logger: slog.New(handler)}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{logger: slog.New(slog.DiscardHandler)}
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogError logs an application error with appropriate level and context
func (l *Logger) LogError(err error, message string, args ...any) {
	if appErr, ok := As(err); ok {
		logArgs := []any{
			"error_type", appErr.Type,
			"error_code", appErr.Code,
			"error_kind", appErr.Kind(),
			"error_message", appErr.Message,
		}
		if appErr.Cause != nil {
			logArgs = append(logArgs, "cause", appErr.Cause.Error())
		}

		for key, value := range appErr.Context {
			logArgs = append(logArgs, key, value)
		}

		logArgs = append(logArgs, args...)
		l.logger.Error(message, logArgs...)
		return
	}

	logArgs := append([]any{"error", err.Error()}, args...)
	l.logger.Error(message, logArgs...)
}

func (l *Logger) Info(message string, args ...any) {
	l.logger.Info(message, args...)
}

func (l *Logger) Debug(message string, args ...any) {
	l.logger.Debug(message, args...)
}

func (l *Logger) Warn(message string, args ...any) {
	l.logger.Warn(message, args...)
}

// New creates a new logger instance
func New(level string) (*Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	return NewLogger(slogLevel), nil
}

// Common error codes
const (
	ErrCodeFileNotFound         = "FILE_NOT_FOUND"
	ErrCodeFileNotReadable      = "FILE_NOT_READABLE"
	ErrCodeIngestionFailed      = "INGESTION_FAILED"
	ErrCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeFileTooLarge         = "FILE_TOO_LARGE"
	ErrCodeTransportFailed      = "TRANSPORT_FAILED"
	ErrCodeUpstreamStatus       = "UPSTREAM_STATUS"
	ErrCodeCircuitOpen          = "CIRCUIT_OPEN"
	ErrCodeExtractionFailed     = "EXTRACTION_FAILED"
	ErrCodeNoTextBlock          = "NO_TEXT_BLOCK"
	ErrCodeSchemaInvalid        = "SCHEMA_INVALID"
	ErrCodeWorkflowBusy         = "WORKFLOW_BUSY"
	ErrCodeWorkflowGuard        = "WORKFLOW_GUARD"
	ErrCodeInvalidFormat        = "INVALID_FORMAT"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeMissingAPIKey        = "MISSING_API_KEY"
	ErrCodeInvalidConfig        = "INVALID_CONFIG"
	ErrCodePromptTemplate       = "PROMPT_TEMPLATE"
	ErrCodeJobFetchFailed       = "JOB_FETCH_FAILED"
)
