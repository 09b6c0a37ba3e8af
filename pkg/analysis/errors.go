package analysis

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ========== 错误类型层次结构 ==========

// BaseError 分析错误的公共部分
type BaseError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *BaseError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *BaseError) GetType() string {
	return e.Type
}

// ConfigurationError 分析服务未配置（缺少API凭据等）
type ConfigurationError struct {
	*BaseError
}

func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{
		BaseError: &BaseError{Type: "ConfigurationError", Message: message},
	}
}

// ProviderExecutionError 调用大模型失败
type ProviderExecutionError struct {
	*BaseError
	Cause error
}

func NewProviderExecutionError(cause error) *ProviderExecutionError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &ProviderExecutionError{
		BaseError: &BaseError{Type: "ProviderExecutionError", Message: "analysis provider call failed", Details: details},
		Cause:     cause,
	}
}

func (e *ProviderExecutionError) Unwrap() error {
	return e.Cause
}

// maxSnippetBytes 解析失败时保留的原始响应长度
const maxSnippetBytes = 500

// ResponseParseError 模型返回的内容不是合法JSON对象
type ResponseParseError struct {
	*BaseError
	Snippet string
}

func NewResponseParseError(payload string, cause error) *ResponseParseError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &ResponseParseError{
		BaseError: &BaseError{Type: "ResponseParseError", Message: "analysis response is not valid JSON", Details: details},
		Snippet:   truncate(payload, maxSnippetBytes),
	}
}

// 校验错误代码
const (
	CodeEmptyPortfolio     = "EMPTY_PORTFOLIO"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidSubjectType = "INVALID_SUBJECT_TYPE"
	CodeNoWatchlistItems   = "NO_WATCHLIST_ITEMS"
)

// ValidationError 请求的分析对象不合法
type ValidationError struct {
	*BaseError
	Code string
}

func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{Type: "ValidationError", Message: message},
		Code:      code,
	}
}

// RateLimitExceeded 用户超出分析频率
type RateLimitExceeded struct {
	*BaseError
	Limit  int
	Window time.Duration
}

func NewRateLimitExceeded(limit int, window time.Duration) *RateLimitExceeded {
	return &RateLimitExceeded{
		BaseError: &BaseError{
			Type:    "RateLimitExceeded",
			Message: fmt.Sprintf("rate limit exceeded: at most %d analyses per %s", limit, window),
		},
		Limit:  limit,
		Window: window,
	}
}

// IsValidation 是否为校验错误
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsRateLimited 是否为限流错误
func IsRateLimited(err error) bool {
	var target *RateLimitExceeded
	return errors.As(err, &target)
}

// IsConfiguration 是否为配置错误
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsProviderExecution 是否为模型调用错误
func IsProviderExecution(err error) bool {
	var target *ProviderExecutionError
	return errors.As(err, &target)
}

// IsResponseParse 是否为响应解析错误
func IsResponseParse(err error) bool {
	var target *ResponseParseError
	return errors.As(err, &target)
}

// truncate 按字节截断，不切断多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
