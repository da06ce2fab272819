package middleware

import (
	"dealroom/internal/services"
	"dealroom/internal/transport/httpdto"
	dealroom_errors "dealroom/pkg/errors"
	"dealroom/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error attached with c.Error. Handlers that
// already wrote a response are left alone.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := dealroom_errors.HTTPStatus(err)
		if l != nil && status >= 500 {
			l.WithContext(c.Request.Context()).Error("request error", zap.Error(err))
		}
		if c.Writer.Written() {
			return
		}
		p := services.TranslateError(err)
		c.JSON(status, httpdto.NewErrorResponse(p.Message, p.Code))
	}
}
