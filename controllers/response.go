package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/repository"
)

// 错误代码
const (
	CodeInvalidParams    = "INVALID_PARAMS"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeLLMNotConfigured = "LLM_NOT_CONFIGURED"
	CodeLLMError         = "LLM_ERROR"
	CodeLLMBadResponse   = "LLM_BAD_RESPONSE"
)

func respondError(c *gin.Context, status int, msg, code string) {
	c.JSON(status, gin.H{
		"error": msg,
		"code":  code,
	})
}

func badRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, err.Error(), CodeInvalidParams)
}

// storeError 把数据访问错误转换为响应，ErrNotFound 返回404
func storeError(c *gin.Context, err error, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(c, http.StatusNotFound, what+" not found", CodeNotFound)
		return
	}
	logrus.Errorf("%s 数据访问失败: %v", what, err)
	respondError(c, http.StatusInternalServerError, "internal server error", CodeInternal)
}

// analysisError 分析错误到HTTP状态的映射
func analysisError(c *gin.Context, err error) {
	var (
		rateErr       *analysis.RateLimitExceeded
		validationErr *analysis.ValidationError
	)

	switch {
	case errors.As(err, &rateErr):
		respondError(c, http.StatusTooManyRequests, rateErr.Error(), CodeRateLimited)
	case errors.As(err, &validationErr):
		status := http.StatusBadRequest
		if validationErr.Code == analysis.CodeNotFound {
			status = http.StatusNotFound
		}
		respondError(c, status, validationErr.Message, validationErr.Code)
	case analysis.IsConfiguration(err):
		respondError(c, http.StatusServiceUnavailable, "analysis service is not configured", CodeLLMNotConfigured)
	case analysis.IsProviderExecution(err):
		logrus.Errorf("分析模型调用失败: %v", err)
		respondError(c, http.StatusBadGateway, "analysis provider call failed", CodeLLMError)
	case analysis.IsResponseParse(err):
		logrus.Errorf("分析结果解析失败: %v", err)
		respondError(c, http.StatusBadGateway, "analysis provider returned an invalid response", CodeLLMBadResponse)
	default:
		logrus.Errorf("分析失败: %v", err)
		respondError(c, http.StatusInternalServerError, "internal server error", CodeInternal)
	}
}

// pathID 解析路径中的正整数ID，失败时已写入400
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "invalid "+name, CodeInvalidParams)
		return 0, false
	}
	return uint(id), true
}
