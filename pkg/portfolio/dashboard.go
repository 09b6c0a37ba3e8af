package portfolio

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"roboadvisor/pkg/models"
)

// OtherCategory 未填写分类时的归类
const OtherCategory = "Other"

var hundred = decimal.NewFromInt(100)

// PositionValue 单个持仓的价值
type PositionValue struct {
	ID            uint            `json:"id"`
	Name          string          `json:"name"`
	ISIN          string          `json:"isin"`
	Ticker        string          `json:"ticker"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice string          `json:"purchase_price"`
	PurchaseValue decimal.Decimal `json:"purchase_value"`
	CurrentPrice  *float64        `json:"current_price"`
	CurrentValue  *float64        `json:"current_value"`
}

// Summary 组合汇总；没有行情源，当前价值为空
type Summary struct {
	TotalPurchaseValue decimal.Decimal `json:"total_purchase_value"`
	TotalCurrentValue  *float64        `json:"total_current_value"`
	PositionCount      int             `json:"position_count"`
	Positions          []PositionValue `json:"positions"`
}

// AllocationItem 分类占比
type AllocationItem struct {
	Category   string          `json:"category"`
	Value      decimal.Decimal `json:"value"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Allocation 按行业、地区、资产类别的分布
type Allocation struct {
	BySector     []AllocationItem `json:"by_sector"`
	ByRegion     []AllocationItem `json:"by_region"`
	ByAssetClass []AllocationItem `json:"by_asset_class"`
}

// PurchaseValue 数量乘以买入价；价格无法解析时为0
func PurchaseValue(h *models.PortfolioHolding) decimal.Decimal {
	price, err := ParsePrice(h.PurchasePrice)
	if err != nil {
		return decimal.Zero
	}
	return h.Quantity.Mul(price)
}

// Summarize 计算组合汇总
func Summarize(holdings []models.PortfolioHolding) *Summary {
	summary := &Summary{
		TotalPurchaseValue: decimal.Zero,
		PositionCount:      len(holdings),
		Positions:          make([]PositionValue, 0, len(holdings)),
	}
	for i := range holdings {
		h := &holdings[i]
		value := PurchaseValue(h)
		summary.TotalPurchaseValue = summary.TotalPurchaseValue.Add(value)
		summary.Positions = append(summary.Positions, PositionValue{
			ID:            h.ID,
			Name:          h.Name,
			ISIN:          h.ISIN,
			Ticker:        h.Ticker,
			Quantity:      h.Quantity,
			PurchasePrice: h.PurchasePrice,
			PurchaseValue: value.Round(2),
		})
	}
	summary.TotalPurchaseValue = summary.TotalPurchaseValue.Round(2)
	return summary
}

// Allocate 按持仓自身的分类计算分布
func Allocate(holdings []models.PortfolioHolding) *Allocation {
	return &Allocation{
		BySector:     allocateBy(holdings, func(h *models.PortfolioHolding) string { return h.Sector }),
		ByRegion:     allocateBy(holdings, func(h *models.PortfolioHolding) string { return h.Region }),
		ByAssetClass: allocateBy(holdings, func(h *models.PortfolioHolding) string { return h.AssetClass }),
	}
}

func allocateBy(holdings []models.PortfolioHolding, category func(*models.PortfolioHolding) string) []AllocationItem {
	totals := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for i := range holdings {
		h := &holdings[i]
		name := strings.TrimSpace(category(h))
		if name == "" {
			name = OtherCategory
		}
		value := PurchaseValue(h)
		totals[name] = totals[name].Add(value)
		total = total.Add(value)
	}

	items := make([]AllocationItem, 0, len(totals))
	for name, value := range totals {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = value.Div(total).Mul(hundred).Round(2)
		}
		items = append(items, AllocationItem{Category: name, Value: value.Round(2), Percentage: pct})
	}
	sort.Slice(items, func(i, j int) bool {
		if c := items[i].Value.Cmp(items[j].Value); c != 0 {
			return c > 0
		}
		return items[i].Category < items[j].Category
	})
	return items
}
