package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domain "roboadvisor/models"
	"roboadvisor/pkg/middleware"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/repository"
)

// HistoryController 分析历史查询
type HistoryController struct {
	repo *repository.Repository
}

// NewHistoryController 创建历史控制器
func NewHistoryController(repo *repository.Repository) *HistoryController {
	return &HistoryController{repo: repo}
}

// HoldingHistory 持仓的全部历史
func (hc *HistoryController) HoldingHistory(c *gin.Context) {
	id, ok := pathID(c, "holding_id")
	if !ok {
		return
	}
	hc.subjectHistory(c, domain.SubjectPortfolio, id, 0)
}

// WatchlistHistory 自选的全部历史
func (hc *HistoryController) WatchlistHistory(c *gin.Context) {
	id, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	hc.subjectHistory(c, domain.SubjectWatchlist, id, 0)
}

// AssetTypeHistory 按对象类型查询，最多返回 AssetHistoryLimit 条
func (hc *HistoryController) AssetTypeHistory(c *gin.Context) {
	assetType := c.Param("asset_type")
	if assetType != domain.SubjectPortfolio && assetType != domain.SubjectWatchlist {
		respondError(c, http.StatusBadRequest, "asset_type must be 'portfolio' or 'watchlist'", "INVALID_SUBJECT_TYPE")
		return
	}
	id, ok := pathID(c, "asset_id")
	if !ok {
		return
	}
	hc.subjectHistory(c, assetType, id, repository.AssetHistoryLimit)
}

func (hc *HistoryController) subjectHistory(c *gin.Context, subjectType string, id uint, limit int) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)

	var records []models.AnalysisHistory
	switch subjectType {
	case domain.SubjectPortfolio:
		if _, err := hc.repo.GetHolding(ctx, userID, id); err != nil {
			storeError(c, err, "portfolio holding")
			return
		}
		list, err := hc.repo.ListHoldingHistory(ctx, userID, id, limit)
		if err != nil {
			storeError(c, err, "analysis history")
			return
		}
		records = list
	default:
		if _, err := hc.repo.GetWatchlistItem(ctx, userID, id); err != nil {
			storeError(c, err, "watchlist item")
			return
		}
		list, err := hc.repo.ListWatchlistHistory(ctx, userID, id, limit)
		if err != nil {
			storeError(c, err, "analysis history")
			return
		}
		records = list
	}
	c.JSON(http.StatusOK, records)
}

// AssetHistory 按ISIN和/或ticker查询，跨组合与自选
func (hc *HistoryController) AssetHistory(c *gin.Context) {
	isin := strings.TrimSpace(c.Query("isin"))
	ticker := strings.TrimSpace(c.Query("ticker"))
	if isin == "" && ticker == "" {
		respondError(c, http.StatusBadRequest, "either isin or ticker is required", CodeInvalidParams)
		return
	}
	records, err := hc.repo.ListAssetHistory(c.Request.Context(), middleware.CurrentUserID(c), isin, ticker)
	if err != nil {
		storeError(c, err, "analysis history")
		return
	}
	c.JSON(http.StatusOK, records)
}

// Summary 按资产聚合的历史摘要
func (hc *HistoryController) Summary(c *gin.Context) {
	summaries, err := hc.repo.SummarizeHistory(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "analysis history")
		return
	}
	if summaries == nil {
		summaries = []repository.HistorySummary{}
	}
	c.JSON(http.StatusOK, summaries)
}
