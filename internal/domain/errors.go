package domain

import (
	"errors"
	"fmt"
)

// ValidationError 本地校验失败，请求不会发往提供方。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError 创建校验错误。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// GatewayError 提供方调用失败：网络错误、超时、非 2xx 状态或响应缺字段。
type GatewayError struct {
	Op     string // 提供方函数名，如 check_email
	Status int    // HTTP 状态码，未收到响应时为 0
	Cause  error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s failed with status %d: %v", e.Op, e.Status, e.Cause)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Cause)
}

func (e *GatewayError) Unwrap() error { return e.Cause }

// NotFoundError 引用的资源已不存在。
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InitError 邮箱初始化失败。
type InitError struct {
	Cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize mailbox: %v", e.Cause)
}

func (e *InitError) Unwrap() error { return e.Cause }

// IsValidation 判断是否为校验错误。
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsGateway 判断是否为提供方错误。
func IsGateway(err error) bool {
	var target *GatewayError
	return errors.As(err, &target)
}

// IsNotFound 判断是否为资源不存在错误。
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
