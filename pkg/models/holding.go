package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioHolding 组合持仓
type PortfolioHolding struct {
	ID            uint            `json:"id" gorm:"primarykey"`
	UserID        uint            `json:"-" gorm:"index;not null"`
	ISIN          string          `json:"isin" gorm:"size:12"`
	Ticker        string          `json:"ticker" gorm:"size:32"`
	Name          string          `json:"name" gorm:"size:255;not null"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Quantity      decimal.Decimal `json:"quantity" gorm:"type:decimal(20,8);not null"`
	PurchasePrice string          `json:"purchase_price" gorm:"size:64;not null"`
	Sector        string          `json:"sector" gorm:"size:100"`
	Region        string          `json:"region" gorm:"size:100"`
	AssetClass    string          `json:"asset_class" gorm:"size:100"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MatchKey 组合分析结果按该标识匹配持仓：ticker > ISIN > 名称
func (h *PortfolioHolding) MatchKey() string {
	switch {
	case h.Ticker != "":
		return h.Ticker
	case h.ISIN != "":
		return h.ISIN
	default:
		return h.Name
	}
}

// WatchlistItem 自选
type WatchlistItem struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	UserID     uint      `json:"-" gorm:"index;not null"`
	ISIN       string    `json:"isin" gorm:"size:12"`
	Ticker     string    `json:"ticker" gorm:"size:32"`
	Name       string    `json:"name" gorm:"size:255;not null"`
	Sector     string    `json:"sector" gorm:"size:100"`
	Region     string    `json:"region" gorm:"size:100"`
	AssetClass string    `json:"asset_class" gorm:"size:100"`
	Notes      string    `json:"notes" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MatchKey 与持仓相同的标识规则
func (w *WatchlistItem) MatchKey() string {
	switch {
	case w.Ticker != "":
		return w.Ticker
	case w.ISIN != "":
		return w.ISIN
	default:
		return w.Name
	}
}
