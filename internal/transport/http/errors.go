package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kieru/backend/internal/domain"
	"kieru/backend/internal/service"
)

// 通用错误消息
const (
	MsgInvalidRequest   = "Invalid request body"
	MsgInvalidAction    = "Invalid action"
	MsgEmailIDRequired  = "Email ID is required"
	MsgEmailUserMissing = "Email user is required"
	MsgEmailIDsRequired = "Email IDs are required"
	MsgEmailAddrMissing = "Email address is required"
	MsgInvalidDomain    = "Invalid domain"
	MsgInvalidSeq       = "seq must be a non-negative integer"
	MsgInvalidOffset    = "offset must be a non-negative integer"
	MsgSessionRequired  = "session required"
	MsgUnknownError     = "Unknown error occurred"
)

// 哨兵错误 -> HTTP 状态码（控制器接口）
var sentinelStatus = map[error]int{
	service.ErrSessionNotFound: http.StatusUnauthorized,
	service.ErrTooManySessions: http.StatusServiceUnavailable,
	service.ErrStale:           http.StatusConflict,
	service.ErrNoAddress:       http.StatusConflict,
}

// controllerStatus 控制器接口的错误分类：提供方故障为 502
func controllerStatus(err error) int {
	for sentinel, status := range sentinelStatus {
		if errors.Is(err, sentinel) {
			return status
		}
	}
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsGateway(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// routerStatus /api/email 的错误分类：本地校验为 400，其余下游失败一律 500
func routerStatus(err error) int {
	if domain.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errorMessage 返回面向调用方的错误文本
func errorMessage(err error) string {
	if err == nil {
		return MsgUnknownError
	}
	return err.Error()
}

// abortController 按控制器接口规则写错误响应
func abortController(c *gin.Context, err error) {
	_ = c.Error(err)
	Error(c, controllerStatus(err), errorMessage(err))
}

// abortRouter 按 /api/email 规则写错误响应
func abortRouter(c *gin.Context, err error) {
	_ = c.Error(err)
	Error(c, routerStatus(err), errorMessage(err))
}
