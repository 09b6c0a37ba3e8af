package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domain "roboadvisor/models"
	"roboadvisor/pkg/config"
)

// ConfigController 系统配置控制器
type ConfigController struct {
	cfg           *config.Config
	llmConfigured bool
}

// NewConfigController 创建配置控制器
func NewConfigController(cfg *config.Config, llmConfigured bool) *ConfigController {
	return &ConfigController{cfg: cfg, llmConfigured: llmConfigured}
}

// SystemConfigResponse 前端可见的系统配置，不含任何密钥
type SystemConfigResponse struct {
	LLMConfigured       bool     `json:"llm_configured"`
	LLMProvider         string   `json:"llm_provider"`
	CacheBackend        string   `json:"cache_backend"`
	CacheTTLSeconds     int64    `json:"cache_ttl_seconds"`
	PortfolioRateLimit  int      `json:"portfolio_rate_limit"`
	AssetRateLimit      int      `json:"asset_rate_limit"`
	RateLimitWindowSecs int64    `json:"rate_limit_window_seconds"`
	Languages           []string `json:"languages"`
	Currencies          []string `json:"currencies"`
}

// GetSystemConfig 获取系统配置
func (cc *ConfigController) GetSystemConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": cc.response(),
	})
}

func (cc *ConfigController) response() SystemConfigResponse {
	provider := ""
	if cc.llmConfigured {
		provider = cc.cfg.LLM.Provider
	}
	return SystemConfigResponse{
		LLMConfigured:       cc.llmConfigured,
		LLMProvider:         provider,
		CacheBackend:        cc.cfg.Cache.Backend,
		CacheTTLSeconds:     int64(cc.cfg.Cache.TTL.Seconds()),
		PortfolioRateLimit:  cc.cfg.RateLimit.PortfolioLimit,
		AssetRateLimit:      cc.cfg.RateLimit.AssetLimit,
		RateLimitWindowSecs: int64(cc.cfg.RateLimit.Window.Seconds()),
		Languages:           domain.Languages,
		Currencies:          domain.Currencies,
	}
}
