package repository

import (
	"context"

	"roboadvisor/pkg/models"
)

// ListHoldings 用户全部持仓
func (r *Repository) ListHoldings(ctx context.Context, userID uint) ([]models.PortfolioHolding, error) {
	var holdings []models.PortfolioHolding
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&holdings).Error
	return holdings, err
}

// GetHolding 获取属于该用户的持仓
func (r *Repository) GetHolding(ctx context.Context, userID, id uint) (*models.PortfolioHolding, error) {
	var holding models.PortfolioHolding
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&holding).Error
	if err != nil {
		return nil, translate(err)
	}
	return &holding, nil
}

// CreateHolding 新增持仓
func (r *Repository) CreateHolding(ctx context.Context, holding *models.PortfolioHolding) error {
	return r.db.WithContext(ctx).Create(holding).Error
}

// SaveHolding 更新持仓
func (r *Repository) SaveHolding(ctx context.Context, holding *models.PortfolioHolding) error {
	return r.db.WithContext(ctx).Save(holding).Error
}

// DeleteHolding 删除持仓
func (r *Repository) DeleteHolding(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.PortfolioHolding{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
