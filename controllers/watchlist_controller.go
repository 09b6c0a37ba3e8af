package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/middleware"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/portfolio"
	"roboadvisor/pkg/repository"
)

// WatchlistController 自选管理
type WatchlistController struct {
	repo     *repository.Repository
	analysis *analysis.Service
}

// NewWatchlistController 创建自选控制器
func NewWatchlistController(repo *repository.Repository, analysisService *analysis.Service) *WatchlistController {
	return &WatchlistController{repo: repo, analysis: analysisService}
}

// List 获取全部自选
func (wc *WatchlistController) List(c *gin.Context) {
	items, err := wc.repo.ListWatchlist(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "watchlist")
		return
	}
	c.JSON(http.StatusOK, items)
}

// Get 获取单个自选
func (wc *WatchlistController) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := wc.repo.GetWatchlistItem(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		storeError(c, err, "watchlist item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// Create 新建自选
func (wc *WatchlistController) Create(c *gin.Context) {
	var in portfolio.WatchlistInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}

	item := &models.WatchlistItem{UserID: middleware.CurrentUserID(c)}
	if err := portfolio.ApplyWatchlist(item, in); err != nil {
		badRequest(c, err)
		return
	}
	if err := wc.repo.CreateWatchlistItem(c.Request.Context(), item); err != nil {
		storeError(c, err, "watchlist item")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Update 局部更新自选
func (wc *WatchlistController) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in portfolio.WatchlistInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}

	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)
	item, err := wc.repo.GetWatchlistItem(ctx, userID, id)
	if err != nil {
		storeError(c, err, "watchlist item")
		return
	}
	if err := portfolio.ApplyWatchlist(item, in); err != nil {
		badRequest(c, err)
		return
	}
	if err := wc.repo.SaveWatchlistItem(ctx, item); err != nil {
		storeError(c, err, "watchlist item")
		return
	}
	wc.analysis.InvalidateWatchlistItem(userID, id)
	c.JSON(http.StatusOK, item)
}

// Delete 删除自选
func (wc *WatchlistController) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID := middleware.CurrentUserID(c)
	if err := wc.repo.DeleteWatchlistItem(c.Request.Context(), userID, id); err != nil {
		storeError(c, err, "watchlist item")
		return
	}
	wc.analysis.InvalidateWatchlistItem(userID, id)
	c.JSON(http.StatusOK, gin.H{"message": "watchlist item deleted"})
}
