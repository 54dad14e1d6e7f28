package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

// ErrorResponse is the JSON body for failed API calls
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorHandler recovers panics and renders the last error attached with
// c.Error as an AppError JSON body
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
					"operation":   "error_handler_panic",
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
					"service":     "middleware",
				}).Error("Panic recovered in HTTP handler")

				c.Abort()
				render(c, errors.NewInternalError(fmt.Sprintf("panic in handler: %v", r), nil))
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		render(c, c.Errors.Last().Err)
	}
}

// ToAppError wraps unknown errors as internal errors
func ToAppError(err error) *errors.AppError {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}
	return errors.NewInternalError("An unexpected error occurred", err)
}

func render(c *gin.Context, err error) {
	appErr := ToAppError(err)
	correlationID := telemetry.GetCorrelationID(c.Request.Context())
	if appErr.CorrelationID == "" {
		appErr = appErr.WithCorrelationID(correlationID)
	}

	logError(c, appErr)

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, ErrorResponse{Error: ErrorBody{
		Code:          appErr.Code,
		Message:       appErr.Message,
		Details:       appErr.Details,
		CorrelationID: appErr.CorrelationID,
		Metadata:      publicMetadata(appErr),
	}})
}

// publicMetadata drops metadata that should stay in logs
func publicMetadata(appErr *errors.AppError) map[string]interface{} {
	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeNotFound, errors.ErrorTypeRateLimit:
		return appErr.Metadata
	default:
		return nil
	}
}

// logError logs the error with a level based on error type
func logError(c *gin.Context, appErr *errors.AppError) {
	logger := telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
		"operation":  "error_handler_log",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"path":       c.Request.URL.Path,
		"service":    "middleware",
	})
	for k, v := range appErr.Metadata {
		logger = logger.WithField(k, v)
	}
	if appErr.Cause != nil {
		logger = logger.WithField("cause", appErr.Cause.Error())
	}

	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeRateLimit:
		logger.Warn(appErr.Message)
	case errors.ErrorTypeNotFound, errors.ErrorTypeConflict:
		logger.Info(appErr.Message)
	default:
		logger.Error(appErr.Message)
	}
}

// UserFriendlyMessage converts an error into text for chat users
func UserFriendlyMessage(err error) string {
	appErr := ToAppError(err)
	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeNotFound:
		return "❌ " + appErr.Message
	case errors.ErrorTypeRateLimit:
		return "⏰ 요청이 너무 많습니다. 잠시 후 다시 시도해 주세요."
	case errors.ErrorTypeTimeout:
		return "⏱️ 요청 시간이 초과되었습니다. 다시 시도해 주세요."
	case errors.ErrorTypeExternal, errors.ErrorTypeDatabase, errors.ErrorTypeCache:
		return "🌐 외부 서비스를 일시적으로 사용할 수 없습니다. 잠시 후 다시 시도해 주세요."
	default:
		return "❌ 문제가 발생했습니다. 잠시 후 다시 시도해 주세요."
	}
}
