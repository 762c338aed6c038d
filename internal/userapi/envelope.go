package userapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/vidtube/internal/apierror"
)

type successEnvelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

type errorEnvelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
	Errors     []string    `json:"errors"`
}

func respondSuccess(contextGin *gin.Context, statusCode int, data interface{}, message string) {
	contextGin.JSON(statusCode, successEnvelope{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

// respondError serializes recognized apierror carriers verbatim. Anything
// else is logged server-side and mapped to a fixed 500 message so internal
// failure text never reaches the wire.
func respondError(contextGin *gin.Context, logger *zap.Logger, err error) {
	carrier, recognized := apierror.From(err)
	if !recognized {
		logger.Error("unexpected handler failure",
			zap.String("code", "api.unmapped_error"),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Error(err))
		carrier = apierror.Internal("internal server error")
	}
	details := carrier.Details
	if details == nil {
		details = []string{}
	}
	contextGin.AbortWithStatusJSON(carrier.StatusCode, errorEnvelope{
		StatusCode: carrier.StatusCode,
		Data:       nil,
		Message:    carrier.Message,
		Success:    false,
		Errors:     details,
	})
}

func respondUnauthorized(contextGin *gin.Context, logger *zap.Logger, message string) {
	respondError(contextGin, logger, apierror.Unauthorized(message))
}
