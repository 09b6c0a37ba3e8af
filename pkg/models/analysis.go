package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrHistorySubject 历史记录必须且只能关联一个分析对象
var ErrHistorySubject = errors.New("analysis history must reference exactly one of holding or watchlist item")

// AnalysisHistory 对应 analysis_history 表，只追加不修改
type AnalysisHistory struct {
	ID                 uint           `json:"id" gorm:"primarykey"`
	UserID             uint           `json:"user_id" gorm:"index;not null"`
	PortfolioHoldingID *uint          `json:"portfolio_holding_id" gorm:"index"`
	WatchlistItemID    *uint          `json:"watchlist_item_id" gorm:"index"`
	AssetName          string         `json:"asset_name" gorm:"size:255;not null"`
	AssetISIN          string         `json:"asset_isin" gorm:"size:12;index"`
	AssetTicker        string         `json:"asset_ticker" gorm:"size:32;index"`
	AnalysisData       datatypes.JSON `json:"analysis_data"`
	CreatedAt          time.Time      `json:"created_at" gorm:"index"`
}

func (AnalysisHistory) TableName() string {
	return "analysis_history"
}

// ValidateSubject 检查持仓ID与自选ID恰好设置一个
func (h *AnalysisHistory) ValidateSubject() error {
	if (h.PortfolioHoldingID == nil) == (h.WatchlistItemID == nil) {
		return ErrHistorySubject
	}
	return nil
}

// BeforeCreate gorm钩子
func (h *AnalysisHistory) BeforeCreate(tx *gorm.DB) error {
	return h.ValidateSubject()
}
