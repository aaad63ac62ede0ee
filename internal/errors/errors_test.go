package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aysenursarun/ChurnGuard-AI/internal/charts"
	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/features"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		status   int
	}{
		{
			name:     "model unavailable",
			err:      scoring.Unavailable(errors.New("missing file")).Err(),
			category: CategoryModelUnavailable,
			status:   http.StatusServiceUnavailable,
		},
		{
			name:     "missing field",
			err:      fmt.Errorf("scoring: %w", &features.FieldError{Row: -1, Field: "tenure", Err: features.ErrMissingField}),
			category: CategoryMissingField,
			status:   http.StatusUnprocessableEntity,
		},
		{
			name:     "invalid value",
			err:      &features.FieldError{Row: 3, Field: "MonthlyCharges", Err: features.ErrInvalidValue},
			category: CategoryMissingField,
			status:   http.StatusUnprocessableEntity,
		},
		{
			name:     "unknown session",
			err:      session.ErrNotFound,
			category: CategoryNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "unknown chart",
			err:      fmt.Errorf("%w: pie", charts.ErrUnknownChart),
			category: CategoryNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "empty dataset",
			err:      dataset.ErrEmptyDataset,
			category: CategoryValidation,
			status:   http.StatusBadRequest,
		},
		{
			name:     "upload too large",
			err:      fmt.Errorf("reading upload: %w", &http.MaxBytesError{Limit: 1024}),
			category: CategoryValidation,
			status:   http.StatusRequestEntityTooLarge,
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			category: CategoryTimeout,
			status:   http.StatusGatewayTimeout,
		},
		{
			name:     "anything else",
			err:      errors.New("boom"),
			category: CategoryInternal,
			status:   http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.category, appErr.Category)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
		})
	}

	assert.Nil(t, ToAppError(nil))

	original := NewValidationError("bad input")
	assert.Same(t, original, ToAppError(fmt.Errorf("wrapped: %w", original)))
}

func TestAppError_Message(t *testing.T) {
	err := NewValidationError("test validation error", "field1")
	assert.Equal(t, "[VALIDATION_ERROR] test validation error", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)

	schemaErr := NewSchemaError(dataset.Report{Problems: []dataset.Problem{{
		Kind:     dataset.KindMissingColumns,
		Severity: dataset.SeverityFatal,
		Message:  "missing required columns: Contract",
	}}})
	assert.Equal(t, "[SCHEMA_ERROR] Dataset failed validation", schemaErr.Error())
	assert.Equal(t, http.StatusUnprocessableEntity, schemaErr.HTTPStatus)
}

func TestErrorHandler(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(scoring.ErrModelUnavailable)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(CategoryModelUnavailable), body["category"])
	assert.Equal(t, "req-1", body["request_id"])
}

func TestRecoveryHandler(t *testing.T) {
	router := gin.New()
	router.Use(RecoveryHandler())
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(CategoryInternal))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ctx"))

	err := WrapError(session.ErrNotFound, "loading %s", "abc")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, "loading abc: session not found", err.Error())
}
