package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppError(t *testing.T) {
	appErr := NewAppError(ErrorTypeValidation, "INVALID_INPUT", "Invalid input provided")

	assert.Equal(t, ErrorTypeValidation, appErr.Type)
	assert.Equal(t, "INVALID_INPUT", appErr.Code)
	assert.Equal(t, "Invalid input provided", appErr.Message)
	assert.WithinDuration(t, time.Now(), appErr.Timestamp, time.Second)
	assert.Nil(t, appErr.Cause)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestNewAppErrorWithCause(t *testing.T) {
	originalErr := errors.New("connection timeout")

	appErr := NewAppErrorWithCause(ErrorTypeInternal, "DB_ERROR", "Database connection failed", originalErr)

	assert.Equal(t, originalErr, appErr.Cause)
	assert.Equal(t, originalErr.Error(), appErr.Details)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	assert.ErrorIs(t, appErr, originalErr)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "CODE: message", NewAppError(ErrorTypeInternal, "CODE", "message").Error())
	assert.Equal(t, "CODE: message - more", NewAppError(ErrorTypeInternal, "CODE", "message").WithDetails("more").Error())
}

func TestDefaultHTTPStatus(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  int
	}{
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeConflict, http.StatusConflict},
		{ErrorTypeRateLimit, http.StatusTooManyRequests},
		{ErrorTypeTimeout, http.StatusGatewayTimeout},
		{ErrorTypeExternal, http.StatusInternalServerError},
		{ErrorTypeDatabase, http.StatusInternalServerError},
		{ErrorTypeCache, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			assert.Equal(t, tt.expected, getDefaultHTTPStatus(tt.errorType))
		})
	}
}

func TestNewAddressNotFoundError(t *testing.T) {
	err := NewAddressNotFoundError("강남역", nil)

	assert.Equal(t, ErrorTypeNotFound, err.Type)
	assert.Equal(t, CodeAddressNotFound, err.Code)
	assert.Equal(t, "주소를 찾을 수 없습니다.", err.Message)
	assert.Equal(t, "강남역", err.Metadata["address"])
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
}

func TestNewFriendNotFoundError(t *testing.T) {
	err := NewFriendNotFoundError(7)

	assert.Equal(t, CodeFriendNotFound, err.Code)
	assert.Equal(t, 7, err.Metadata["friend_id"])
	assert.Contains(t, err.Error(), "friend 7 not found")
}

func TestNewInvalidCategoryError(t *testing.T) {
	err := NewInvalidCategoryError("bar")

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, CodeInvalidCategory, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
}

func TestNewExternalError(t *testing.T) {
	cause := errors.New("503")
	err := NewExternalError("kakao", "keyword_search", cause)

	assert.Equal(t, ErrorTypeExternal, err.Type)
	assert.Equal(t, "kakao", err.Metadata["service"])
	assert.Equal(t, "keyword_search", err.Metadata["operation"])
	assert.Equal(t, "503", err.Details)
}

func TestNewTimeoutError(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := NewTimeoutError("keyword_search", 10*time.Second, cause)

	assert.Equal(t, "10s", err.Metadata["timeout"])
	assert.Equal(t, http.StatusGatewayTimeout, err.HTTPStatus)
	assert.ErrorIs(t, err, cause)
}

func TestAsAppError_Wrapped(t *testing.T) {
	inner := NewFriendNotFoundError(3)
	wrapped := fmt.Errorf("remove friend: %w", inner)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, appErr)
	assert.True(t, IsErrorType(wrapped, ErrorTypeNotFound))
	assert.True(t, IsCode(wrapped, CodeFriendNotFound))
	assert.False(t, IsCode(errors.New("plain"), CodeFriendNotFound))
}

func TestGetErrorType(t *testing.T) {
	errorType, ok := GetErrorType(NewCacheError("get", nil))
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeCache, errorType)

	_, ok = GetErrorType(errors.New("plain"))
	assert.False(t, ok)
}

func TestGetCorrelationID(t *testing.T) {
	err := NewInternalError("boom", nil).WithCorrelationID("abc")
	assert.Equal(t, "abc", GetCorrelationID(err))
	assert.Equal(t, "", GetCorrelationID(errors.New("plain")))
}

func TestAppError_JSONSerialization(t *testing.T) {
	appErr := NewValidationError("address", "address is required").
		WithCorrelationID("corr-1")

	data, err := json.Marshal(appErr)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "validation", decoded["type"])
	assert.Equal(t, CodeValidation, decoded["code"])
	assert.Equal(t, "corr-1", decoded["correlation_id"])
	assert.NotContains(t, decoded, "Cause")
	assert.NotContains(t, decoded, "HTTPStatus")
}
