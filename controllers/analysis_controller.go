package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/middleware"
)

// AnalysisController AI分析接口
type AnalysisController struct {
	service *analysis.Service
}

// NewAnalysisController 创建分析控制器
func NewAnalysisController(service *analysis.Service) *AnalysisController {
	return &AnalysisController{service: service}
}

// PortfolioAnalyzeRequest 组合分析请求
type PortfolioAnalyzeRequest struct {
	ForceRefresh bool `json:"force_refresh"`
}

// AssetAnalyzeRequest 单资产分析请求
type AssetAnalyzeRequest struct {
	AssetType    string `json:"asset_type" binding:"required"`
	AssetID      uint   `json:"asset_id" binding:"required"`
	ForceRefresh bool   `json:"force_refresh"`
}

// WatchlistAnalyzeRequest 自选分析请求，不带 item_id 时分析全部
type WatchlistAnalyzeRequest struct {
	ItemID       *uint `json:"item_id"`
	ForceRefresh bool  `json:"force_refresh"`
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return false
	}
	return true
}

// AnalyzePortfolio 组合分析
func (ac *AnalysisController) AnalyzePortfolio(c *gin.Context) {
	var req PortfolioAnalyzeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, err := ac.service.AnalyzePortfolio(c.Request.Context(), middleware.CurrentUserID(c), req.ForceRefresh)
	if err != nil {
		analysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// InvalidateCache 清除组合分析缓存
func (ac *AnalysisController) InvalidateCache(c *gin.Context) {
	ac.service.InvalidateCache(middleware.CurrentUserID(c))
	c.JSON(http.StatusOK, gin.H{"message": "analysis cache cleared"})
}

// AnalyzeAsset 单资产分析
func (ac *AnalysisController) AnalyzeAsset(c *gin.Context) {
	var req AssetAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "asset_type and asset_id are required", CodeInvalidParams)
		return
	}
	result, err := ac.service.AnalyzeSingleAsset(c.Request.Context(), middleware.CurrentUserID(c), req.AssetType, req.AssetID, req.ForceRefresh)
	if err != nil {
		analysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AnalyzeWatchlist 自选分析
func (ac *AnalysisController) AnalyzeWatchlist(c *gin.Context) {
	var req WatchlistAnalyzeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	results, err := ac.service.AnalyzeWatchlist(c.Request.Context(), middleware.CurrentUserID(c), req.ItemID, req.ForceRefresh)
	if err != nil {
		analysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
