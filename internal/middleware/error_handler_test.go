package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssimba1203/gather-map-clean/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(nil), ErrorHandler())
	r.GET("/test", handler)
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestErrorHandler_AppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		metadata bool
	}{
		{"validation", errors.NewValidationError("address", "주소를 입력하세요"), http.StatusBadRequest, "VALIDATION_ERROR", true},
		{"address not found", errors.NewAddressNotFoundError("없는 주소", nil), http.StatusNotFound, "ADDRESS_NOT_FOUND", true},
		{"external", errors.NewExternalError("kakao", "keyword_search", stderrors.New("boom")), http.StatusInternalServerError, "EXTERNAL_ERROR", false},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(func(c *gin.Context) {
				_ = c.Error(tt.err)
			})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(CorrelationHeader, "corr-123")
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, "corr-123", body.CorrelationID)
			assert.Equal(t, "corr-123", w.Header().Get(CorrelationHeader))
			if !tt.metadata {
				assert.Nil(t, body.Metadata)
			}
		})
	}
}

func TestErrorHandler_Panic(t *testing.T) {
	r := newTestRouter(func(c *gin.Context) {
		panic("kaboom")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotEmpty(t, body.CorrelationID)
}

func TestErrorHandler_WrittenResponseUntouched(t *testing.T) {
	r := newTestRouter(func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
		_ = c.Error(stderrors.New("late"))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestUserFriendlyMessage(t *testing.T) {
	assert.Equal(t, "❌ 주소를 찾을 수 없습니다.", UserFriendlyMessage(errors.NewAddressNotFoundError("서울", nil)))
	assert.Contains(t, UserFriendlyMessage(errors.NewRateLimitError(5, "1m")), "요청이 너무 많습니다")
	assert.Contains(t, UserFriendlyMessage(errors.NewExternalError("kakao", "search", nil)), "외부 서비스")
	assert.Contains(t, UserFriendlyMessage(errors.NewTimeoutError("kakao.keyword_search", time.Second, nil)), "시간이 초과")
	assert.Contains(t, UserFriendlyMessage(errors.NewCacheError("lock_gathering", nil)), "외부 서비스")
	assert.Contains(t, UserFriendlyMessage(stderrors.New("x")), "문제가 발생했습니다")
}

func TestToAppError(t *testing.T) {
	appErr := errors.NewFriendNotFoundError(3)
	assert.Same(t, appErr, ToAppError(appErr))

	wrapped := ToAppError(stderrors.New("raw"))
	assert.Equal(t, errors.ErrorTypeInternal, wrapped.Type)
	assert.EqualError(t, wrapped.Cause, "raw")
}
