package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"

	"github.com/aysenursarun/ChurnGuard-AI/internal/charts"
	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/features"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/session"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation       ErrorCategory = "validation"
	CategorySchema           ErrorCategory = "schema"
	CategoryMissingField     ErrorCategory = "missing_field"
	CategoryModelUnavailable ErrorCategory = "model_unavailable"
	CategoryNotFound         ErrorCategory = "not_found"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryRateLimit        ErrorCategory = "rate_limit"
	CategoryInternal         ErrorCategory = "internal"
	CategoryConfiguration    ErrorCategory = "configuration"
)

var categoryCodes = map[ErrorCategory]string{
	CategoryValidation:       "VALIDATION_ERROR",
	CategorySchema:           "SCHEMA_ERROR",
	CategoryMissingField:     "MISSING_FIELD",
	CategoryModelUnavailable: "MODEL_UNAVAILABLE",
	CategoryNotFound:         "NOT_FOUND",
	CategoryTimeout:          "TIMEOUT_ERROR",
	CategoryRateLimit:        "RATE_LIMIT_EXCEEDED",
	CategoryInternal:         "INTERNAL_ERROR",
	CategoryConfiguration:    "CONFIGURATION_ERROR",
}

// AppError wraps an errbuilder error with the HTTP context of the failure
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory     `json:"category"`
	HTTPStatus int               `json:"http_status"`
	Fields     map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
	StackTrace string            `json:"stack_trace,omitempty"`
}

// Response is the JSON body written for an AppError
type Response struct {
	Category  ErrorCategory     `json:"category"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (e *AppError) code() string {
	if codeStr, ok := categoryCodes[e.Category]; ok {
		return codeStr
	}
	return "UNKNOWN_ERROR"
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.code(), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Response renders the error for clients
func (e *AppError) Response() Response {
	return Response{
		Category:  e.Category,
		Code:      e.code(),
		Message:   e.ErrBuilder.Msg,
		Details:   e.Fields,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
	}
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// newDetailedError attaches kv both to the errbuilder details and to the
// client-facing fields
func newDetailedError(builder *errbuilder.ErrBuilder, kv map[string]string, category ErrorCategory, httpStatus int) *AppError {
	if len(kv) > 0 {
		errorMap := errbuilder.ErrorMap{}
		for k, v := range kv {
			errorMap.Set(k, errors.New(v))
		}
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	appErr := NewAppError(builder, category, httpStatus)
	if len(kv) > 0 {
		appErr.Fields = kv
	}
	return appErr
}

// NewValidationError creates a validation error using errbuilder
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	var kv map[string]string
	if len(details) > 0 {
		kv = map[string]string{"validation_details": fmt.Sprintf("%v", details[0])}
	}

	return newDetailedError(builder, kv, CategoryValidation, http.StatusBadRequest)
}

// NewUploadTooLargeError reports an upload over the configured size limit
func NewUploadTooLargeError(limitBytes int64) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Uploaded file is too large")

	return newDetailedError(builder,
		map[string]string{"max_bytes": strconv.FormatInt(limitBytes, 10)},
		CategoryValidation, http.StatusRequestEntityTooLarge)
}

// NewSchemaError reports a dataset refused by validation. Every fatal problem
// becomes one detail entry keyed by its kind.
func NewSchemaError(report dataset.Report) *AppError {
	kv := make(map[string]string)
	for _, p := range report.Errors() {
		kv[string(p.Kind)] = p.Message
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Dataset failed validation")

	return newDetailedError(builder, kv, CategorySchema, http.StatusUnprocessableEntity)
}

// NewMissingFieldError reports a record that cannot be encoded
func NewMissingFieldError(fe *features.FieldError) *AppError {
	kv := map[string]string{"field": fe.Field}
	if fe.Row >= 0 {
		kv["row"] = strconv.Itoa(fe.Row + 1)
	}

	msg := "Record is missing a required field"
	if errors.Is(fe, features.ErrInvalidValue) {
		msg = "Record has a non-numeric or infinite value in a numeric field"
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg).
		WithCause(fe)

	return newDetailedError(builder, kv, CategoryMissingField, http.StatusUnprocessableEntity)
}

// NewModelUnavailableError reports that scoring is disabled because the model
// failed to load
func NewModelUnavailableError(cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg("Churn model is not available; analysis is disabled")

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryModelUnavailable, http.StatusServiceUnavailable)
}

// NewNotFoundError reports an unknown or expired resource
func NewNotFoundError(resource, id string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("%s not found", resource))

	var kv map[string]string
	if id != "" {
		kv = map[string]string{"id": id}
	}

	return newDetailedError(builder, kv, CategoryNotFound, http.StatusNotFound)
}

// NewTimeoutError creates a timeout error using errbuilder
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewRateLimitError creates a rate limit error using errbuilder
func NewRateLimitError(retryAfter string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded")

	return newDetailedError(builder, map[string]string{"retry_after": retryAfter},
		CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error")

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := newDetailedError(builder, map[string]string{"internal_details": message},
		CategoryInternal, http.StatusInternalServerError)

	// Capture stack trace in development/debug mode
	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Configuration error")

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return newDetailedError(builder, map[string]string{"config_details": message},
		CategoryConfiguration, http.StatusInternalServerError)
}

// captureStackTrace captures a stack trace for debugging
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			appErr := ToAppError(c.Errors.Last().Err)
			appErr.RequestID = c.GetHeader("X-Request-ID")

			LogError(c, appErr)

			c.JSON(appErr.HTTPStatus, appErr.Response())
			return
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)

		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
	})
}

// ToAppError converts any error to an AppError. Domain sentinels are matched
// through wrapping.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	var (
		fe       *features.FieldError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return NewUploadTooLargeError(tooLarge.Limit)
	case errors.Is(err, scoring.ErrModelUnavailable):
		return NewModelUnavailableError(err)
	case errors.As(err, &fe):
		return NewMissingFieldError(fe)
	case errors.Is(err, features.ErrMissingField), errors.Is(err, features.ErrInvalidValue):
		return NewMissingFieldError(&features.FieldError{Row: -1, Err: err})
	case errors.Is(err, session.ErrNotFound):
		return NewNotFoundError("dataset session", "")
	case errors.Is(err, charts.ErrUnknownChart):
		return NewNotFoundError("chart", "")
	case errors.Is(err, charts.ErrNotEnoughData):
		appErr := NewValidationError("Dataset has too little data for this chart", err.Error())
		appErr.HTTPStatus = http.StatusUnprocessableEntity
		return appErr
	case errors.Is(err, dataset.ErrEmptyDataset):
		return NewValidationError("Dataset is empty", err.Error())
	case errors.Is(err, context.Canceled):
		return NewTimeoutError("Request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("Request deadline exceeded", err)
	}

	if strings.Contains(err.Error(), "deadline exceeded") {
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	errorMsg := err.ErrBuilder.Msg
	errorDetails := err.ErrBuilder.Details

	switch err.Category {
	case CategoryValidation, CategorySchema, CategoryMissingField, CategoryNotFound, CategoryRateLimit:
		if len(errorDetails.Errors) > 0 {
			logEntry.Warn(errorMsg, "details", errorDetails.Errors)
		} else {
			logEntry.Warn(errorMsg)
		}
	case CategoryTimeout:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Info(errorMsg, "cause", cause)
		} else {
			logEntry.Info(errorMsg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	contextMsg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", contextMsg, err)
}

// SafeClose safely closes a resource and logs any errors
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
