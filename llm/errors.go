package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// 统一的推理错误码，用于对齐 HTTP 状态与可重试性。
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"  // 参数/格式错误
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"     // 未授权或密钥失效
	ErrForbidden       ErrorCode = "LLM_FORBIDDEN"        // 权限或内容策略拒绝
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"     // 上游或本地限流
	ErrQuotaExceeded   ErrorCode = "LLM_QUOTA_EXCEEDED"   // 额度/配额用尽
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT" // 上游超时
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"   // 上游 5xx/网络错误
)

// Error is a backend failure mapped from an HTTP status.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapHTTPError maps an upstream status code to an *Error.
func MapHTTPError(status int, msg string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Code: ErrUnauthorized, Message: msg, HTTPStatus: status}
	case http.StatusForbidden:
		return &Error{Code: ErrForbidden, Message: msg, HTTPStatus: status}
	case http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			return &Error{Code: ErrQuotaExceeded, Message: msg, HTTPStatus: status}
		}
		return &Error{Code: ErrInvalidRequest, Message: msg, HTTPStatus: status}
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return &Error{Code: ErrUpstreamTimeout, Message: msg, HTTPStatus: status, Retryable: true}
	default:
		return &Error{Code: ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500}
	}
}

// Reasons carried by InferenceError.
const (
	ReasonMissingInput     = "no prompt or messages"
	ReasonInvalidResponse  = "invalid response"
	ReasonIncompleteStream = "incomplete stream"
	ReasonMissingID        = "missing response id"
	ReasonRequestFailed    = "request failed"
)

// InferenceError reports a failed job. Response holds whatever was parsed
// before the failure, if anything.
type InferenceError struct {
	Reason   string
	Job      *Job
	Response *Response
	Err      error
}

func (e *InferenceError) Error() string {
	id := ""
	if e.Job != nil {
		id = e.Job.ID
	}
	if e.Err != nil {
		return fmt.Sprintf("inference job %q failed: %s: %v", id, e.Reason, e.Err)
	}
	return fmt.Sprintf("inference job %q failed: %s", id, e.Reason)
}

func (e *InferenceError) Unwrap() error { return e.Err }
