package repository

import (
	"context"

	"roboadvisor/pkg/models"
)

// ListWatchlist 用户全部自选
func (r *Repository) ListWatchlist(ctx context.Context, userID uint) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&items).Error
	return items, err
}

// GetWatchlistItem 获取属于该用户的自选
func (r *Repository) GetWatchlistItem(ctx context.Context, userID, id uint) (*models.WatchlistItem, error) {
	var item models.WatchlistItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// CreateWatchlistItem 新增自选
func (r *Repository) CreateWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// SaveWatchlistItem 更新自选
func (r *Repository) SaveWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// DeleteWatchlistItem 删除自选
func (r *Repository) DeleteWatchlistItem(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.WatchlistItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
