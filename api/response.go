package api

import (
	"errors"
	"net/http"
	"strconv"

	"ovozber-backend/conversation"
	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
)

// ErrorResponse API错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse API成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// parseID 解析路径中的正整数ID
func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// parseTelegramID 解析 Telegram 用户ID
func parseTelegramID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// writeError 把服务层错误映射为HTTP状态码
func writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found"})
	case errors.Is(err, service.ErrPollNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Poll not found"})
	case errors.Is(err, service.ErrRegionNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Region not found"})
	case errors.Is(err, service.ErrDistrictNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "District not found"})
	case errors.Is(err, conversation.ErrUnexpectedEvent):
		ctx.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable"})
	default:
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
