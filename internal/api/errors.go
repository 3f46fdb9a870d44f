package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EasyTier/EasyLink"
)

// statusFor 把实例错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, easylink.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, easylink.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, easylink.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, easylink.ErrStopTimeout):
		return http.StatusAccepted
	case errors.Is(err, easylink.ErrManagerClosed), errors.Is(err, easylink.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
