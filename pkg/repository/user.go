package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "roboadvisor/models"
	"roboadvisor/pkg/models"
)

// CreateUser 创建用户
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail 按邮箱查询
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByID 按ID查询
func (r *Repository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// SaveUser 保存用户资料
func (r *Repository) SaveUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// DeleteUser 删除用户及其全部数据
func (r *Repository) DeleteUser(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.AnalysisHistory{},
			&models.PortfolioHolding{},
			&models.WatchlistItem{},
			&models.UserSettings{},
		} {
			if err := tx.Where("user_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetOrCreateSettings 获取用户设置，不存在时按默认值创建
func (r *Repository) GetOrCreateSettings(ctx context.Context, userID uint) (*models.UserSettings, error) {
	settings := models.UserSettings{
		UserID:        userID,
		Timezone:      "Europe/Berlin",
		Language:      "de",
		Currency:      "EUR",
		Notifications: datatypes.NewJSONType(domain.DefaultNotifications()),
	}
	err := r.db.WithContext(ctx).
		Where(models.UserSettings{UserID: userID}).
		FirstOrCreate(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("get or create settings: %w", err)
	}
	return &settings, nil
}

// SaveSettings 保存用户设置
func (r *Repository) SaveSettings(ctx context.Context, settings *models.UserSettings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}

// GetProfile 读取分析所需的用户偏好，未设置时返回nil
func (r *Repository) GetProfile(ctx context.Context, userID uint) (*domain.Profile, error) {
	var settings models.UserSettings
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Profile{
		RiskProfile:       settings.RiskProfile,
		InvestmentHorizon: settings.InvestmentHorizon,
	}, nil
}

// UserIDsWithHoldings 拥有持仓的用户
func (r *Repository) UserIDsWithHoldings(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.PortfolioHolding{}).
		Distinct().Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// UserIDsWithWatchlist 拥有自选的用户
func (r *Repository) UserIDsWithWatchlist(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.WatchlistItem{}).
		Distinct().Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}
