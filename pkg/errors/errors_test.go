package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", http.StatusInternalServerError)

	if !errors.Is(err, originalErr) {
		t.Errorf("expected wrapped error to unwrap to cause")
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInvalidInputError("bad preference").WithContext("field", "preferred_gender").WithContext("count", 2)

	if err.Context["field"] != "preferred_gender" {
		t.Errorf("Context[field] = %v", err.Context["field"])
	}
	if err.Context["count"] != 2 {
		t.Errorf("Context[count] = %v, want 2", err.Context["count"])
	}
}

func TestConstructors_StatusCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("x"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFoundError("session"), ErrCodeNotFound, http.StatusNotFound},
		{NewUnauthorizedError("x"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewForbiddenError("x"), ErrCodeForbidden, http.StatusForbidden},
		{NewConflictError("x"), ErrCodeConflict, http.StatusConflict},
		{NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewInternalError("x"), ErrCodeInternal, http.StatusInternalServerError},
		{NewServiceUnavailableError("x"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code || tc.err.HTTPStatus != tc.status {
			t.Errorf("%s: got code=%s status=%d", tc.code, tc.err.Code, tc.err.HTTPStatus)
		}
	}
	if msg := NewNotFoundError("session").Message; msg != "session not found" {
		t.Errorf("unexpected not-found message %q", msg)
	}
}

func TestGetAppError_Chain(t *testing.T) {
	appErr := NewForbiddenError("admin only")
	wrapped := fmt.Errorf("stats handler: %w", appErr)

	if got := GetAppError(wrapped); got != appErr {
		t.Errorf("GetAppError() = %v, want %v", got, appErr)
	}
	if !IsAppError(wrapped) {
		t.Error("IsAppError() = false for wrapped AppError")
	}
	if GetAppError(errors.New("plain")) != nil {
		t.Error("GetAppError() should be nil for plain errors")
	}
	if GetAppError(nil) != nil {
		t.Error("GetAppError(nil) should be nil")
	}
}
