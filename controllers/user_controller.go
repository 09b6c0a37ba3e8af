package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	domain "roboadvisor/models"
	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/auth"
	"roboadvisor/pkg/middleware"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/repository"
)

// UserController 用户资料、设置与账户
type UserController struct {
	repo     *repository.Repository
	analysis *analysis.Service
}

// NewUserController 创建用户控制器
func NewUserController(repo *repository.Repository, analysisService *analysis.Service) *UserController {
	return &UserController{repo: repo, analysis: analysisService}
}

// ProfileUpdate 资料更新，nil字段不变
type ProfileUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email" binding:"omitempty,email"`
}

// SettingsUpdate 设置更新，通知开关按键合并
type SettingsUpdate struct {
	Timezone          *string         `json:"timezone"`
	Language          *string         `json:"language"`
	Currency          *string         `json:"currency"`
	RiskProfile       *string         `json:"riskProfile"`
	InvestmentHorizon *string         `json:"investmentHorizon"`
	Notifications     map[string]bool `json:"notifications"`
}

// PasswordChange 修改密码请求
type PasswordChange struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// DataExport 导出的全部用户数据
type DataExport struct {
	Profile    UserResponse              `json:"profile"`
	Settings   *models.UserSettings      `json:"settings"`
	Portfolio  []models.PortfolioHolding `json:"portfolio"`
	Watchlist  []models.WatchlistItem    `json:"watchlist"`
	ExportDate time.Time                 `json:"export_date"`
}

// GetProfile 获取资料
func (uc *UserController) GetProfile(c *gin.Context) {
	user, err := uc.repo.GetUserByID(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// UpdateProfile 更新资料
func (uc *UserController) UpdateProfile(c *gin.Context) {
	var req ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}

	ctx := c.Request.Context()
	user, err := uc.repo.GetUserByID(ctx, middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "user")
		return
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		existing, err := uc.repo.GetUserByEmail(ctx, email)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			storeError(c, err, "user")
			return
		}
		if existing != nil && existing.ID != user.ID {
			respondError(c, http.StatusBadRequest, "email already registered", "EMAIL_TAKEN")
			return
		}
		user.Email = email
	}

	if err := uc.repo.SaveUser(ctx, user); err != nil {
		storeError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// GetSettings 获取设置，不存在时按默认值创建
func (uc *UserController) GetSettings(c *gin.Context) {
	settings, err := uc.repo.GetOrCreateSettings(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings 更新设置
func (uc *UserController) UpdateSettings(c *gin.Context) {
	var req SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}

	ctx := c.Request.Context()
	settings, err := uc.repo.GetOrCreateSettings(ctx, middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "settings")
		return
	}
	if err := applySettings(settings, req); err != nil {
		badRequest(c, err)
		return
	}
	if err := uc.repo.SaveSettings(ctx, settings); err != nil {
		storeError(c, err, "settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// applySettings 校验枚举值后写入，任一字段非法时设置不变
func applySettings(settings *models.UserSettings, req SettingsUpdate) error {
	next := *settings
	if req.Timezone != nil {
		next.Timezone = strings.TrimSpace(*req.Timezone)
	}
	for _, field := range []struct {
		name    string
		value   *string
		allowed []string
		target  *string
	}{
		{"language", req.Language, domain.Languages, &next.Language},
		{"currency", req.Currency, domain.Currencies, &next.Currency},
		{"riskProfile", req.RiskProfile, domain.RiskProfiles, &next.RiskProfile},
		{"investmentHorizon", req.InvestmentHorizon, domain.InvestmentHorizons, &next.InvestmentHorizon},
	} {
		if field.value == nil {
			continue
		}
		if !slices.Contains(field.allowed, *field.value) {
			return fmt.Errorf("invalid %s %q, must be one of: %s", field.name, *field.value, strings.Join(field.allowed, ", "))
		}
		*field.target = *field.value
	}
	if len(req.Notifications) > 0 {
		merged := make(map[string]bool)
		for k, v := range settings.Notifications.Data() {
			merged[k] = v
		}
		for k, v := range req.Notifications {
			merged[k] = v
		}
		next.Notifications = datatypes.NewJSONType(merged)
	}
	*settings = next
	return nil
}

// ChangePassword 修改密码
func (uc *UserController) ChangePassword(c *gin.Context) {
	var req PasswordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}

	ctx := c.Request.Context()
	user, err := uc.repo.GetUserByID(ctx, middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "user")
		return
	}
	if !auth.CheckPassword(user.Password, req.CurrentPassword) {
		respondError(c, http.StatusUnauthorized, "current password is incorrect", "INVALID_CREDENTIALS")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		badRequest(c, err)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logrus.Errorf("密码哈希失败: %v", err)
		respondError(c, http.StatusInternalServerError, "internal server error", CodeInternal)
		return
	}
	user.Password = hash
	if err := uc.repo.SaveUser(ctx, user); err != nil {
		storeError(c, err, "user")
		return
	}

	logrus.WithField("userID", user.ID).Info("用户已修改密码")
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// ExportData 以附件形式导出用户数据
func (uc *UserController) ExportData(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)

	user, err := uc.repo.GetUserByID(ctx, userID)
	if err != nil {
		storeError(c, err, "user")
		return
	}
	settings, err := uc.repo.GetOrCreateSettings(ctx, userID)
	if err != nil {
		storeError(c, err, "settings")
		return
	}
	holdings, err := uc.repo.ListHoldings(ctx, userID)
	if err != nil {
		storeError(c, err, "portfolio")
		return
	}
	watchlist, err := uc.repo.ListWatchlist(ctx, userID)
	if err != nil {
		storeError(c, err, "watchlist")
		return
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("roboadvisor-export-%s.json", now.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.JSON(http.StatusOK, DataExport{
		Profile:    userResponse(user),
		Settings:   settings,
		Portfolio:  holdings,
		Watchlist:  watchlist,
		ExportDate: now,
	})
}

// DeleteAccount 删除账户及全部数据
func (uc *UserController) DeleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)

	holdings, err := uc.repo.ListHoldings(ctx, userID)
	if err != nil {
		storeError(c, err, "portfolio")
		return
	}
	watchlist, err := uc.repo.ListWatchlist(ctx, userID)
	if err != nil {
		storeError(c, err, "watchlist")
		return
	}

	if err := uc.repo.DeleteUser(ctx, userID); err != nil {
		storeError(c, err, "user")
		return
	}

	holdingIDs := make([]uint, 0, len(holdings))
	for i := range holdings {
		holdingIDs = append(holdingIDs, holdings[i].ID)
	}
	itemIDs := make([]uint, 0, len(watchlist))
	for i := range watchlist {
		itemIDs = append(itemIDs, watchlist[i].ID)
	}
	uc.analysis.InvalidateUser(userID, holdingIDs, itemIDs)

	logrus.WithField("userID", userID).Info("用户账户已删除")
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}
