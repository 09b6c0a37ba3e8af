// Package portfolio 持仓输入校验、CSV导入和仪表盘统计。
package portfolio

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"roboadvisor/pkg/models"
)

var (
	ErrNameRequired          = errors.New("name is required")
	ErrIdentifierRequired    = errors.New("either isin or ticker is required")
	ErrQuantityNotPositive   = errors.New("quantity must be greater than 0")
	ErrPurchasePriceRequired = errors.New("purchase_price is required")
	ErrPurchaseDateRequired  = errors.New("purchase_date is required")
)

// dateLayouts 支持的购买日期格式，按顺序尝试
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006/01/02",
	"02-01-2006",
	"2006.01.02",
	"02 01 2006",
}

// ValidISIN ISIN为12位字母数字
func ValidISIN(isin string) bool {
	if len(isin) != 12 {
		return false
	}
	for _, r := range isin {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// NormalizeISIN 去空白并转大写，空值合法
func NormalizeISIN(isin string) (string, error) {
	isin = strings.ToUpper(strings.TrimSpace(isin))
	if isin != "" && !ValidISIN(isin) {
		return "", fmt.Errorf("invalid isin %q: must be exactly 12 alphanumeric characters", isin)
	}
	return isin, nil
}

// NormalizeTicker 去空白并转大写
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// ParseDate 解析购买日期
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrPurchaseDateRequired
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	// ISO 8601 带时间部分时只取日期
	if datePart, _, ok := strings.Cut(value, "T"); ok {
		if t, err := time.Parse("2006-01-02", datePart); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format %q, supported formats: YYYY-MM-DD, DD.MM.YYYY, DD/MM/YYYY", value)
}

// ParsePrice 解析价格，允许逗号作为小数点
func ParsePrice(value string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	if normalized == "" {
		return decimal.Zero, ErrPurchasePriceRequired
	}
	price, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", value)
	}
	return price, nil
}

// ParseQuantity 解析数量，允许逗号作为小数点，必须大于0
func ParseQuantity(value string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	quantity, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity %q", value)
	}
	if !quantity.IsPositive() {
		return decimal.Zero, ErrQuantityNotPositive
	}
	return quantity, nil
}

// HoldingInput 新建持仓的原始输入
type HoldingInput struct {
	ISIN          string          `json:"isin"`
	Ticker        string          `json:"ticker"`
	Name          string          `json:"name"`
	PurchaseDate  string          `json:"purchase_date"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice string          `json:"purchase_price"`
	Sector        string          `json:"sector"`
	Region        string          `json:"region"`
	AssetClass    string          `json:"asset_class"`
}

// BuildHolding 校验输入并生成持仓
func BuildHolding(userID uint, in HoldingInput) (*models.PortfolioHolding, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	isin, err := NormalizeISIN(in.ISIN)
	if err != nil {
		return nil, err
	}
	ticker := NormalizeTicker(in.Ticker)
	if isin == "" && ticker == "" {
		return nil, ErrIdentifierRequired
	}
	if !in.Quantity.IsPositive() {
		return nil, ErrQuantityNotPositive
	}
	price := strings.TrimSpace(in.PurchasePrice)
	if _, err := ParsePrice(price); err != nil {
		return nil, err
	}
	purchaseDate, err := ParseDate(in.PurchaseDate)
	if err != nil {
		return nil, err
	}

	return &models.PortfolioHolding{
		UserID:        userID,
		ISIN:          isin,
		Ticker:        ticker,
		Name:          name,
		PurchaseDate:  purchaseDate,
		Quantity:      in.Quantity,
		PurchasePrice: price,
		Sector:        strings.TrimSpace(in.Sector),
		Region:        strings.TrimSpace(in.Region),
		AssetClass:    strings.TrimSpace(in.AssetClass),
	}, nil
}

// HoldingUpdate 局部更新，nil字段保持不变
type HoldingUpdate struct {
	ISIN          *string          `json:"isin"`
	Ticker        *string          `json:"ticker"`
	Name          *string          `json:"name"`
	PurchaseDate  *string          `json:"purchase_date"`
	Quantity      *decimal.Decimal `json:"quantity"`
	PurchasePrice *string          `json:"purchase_price"`
	Sector        *string          `json:"sector"`
	Region        *string          `json:"region"`
	AssetClass    *string          `json:"asset_class"`
}

// ApplyUpdate 把更新写入持仓，校验失败时持仓不变
func ApplyUpdate(holding *models.PortfolioHolding, upd HoldingUpdate) error {
	next := *holding
	if upd.Name != nil {
		next.Name = strings.TrimSpace(*upd.Name)
		if next.Name == "" {
			return ErrNameRequired
		}
	}
	if upd.ISIN != nil {
		isin, err := NormalizeISIN(*upd.ISIN)
		if err != nil {
			return err
		}
		next.ISIN = isin
	}
	if upd.Ticker != nil {
		next.Ticker = NormalizeTicker(*upd.Ticker)
	}
	if next.ISIN == "" && next.Ticker == "" {
		return ErrIdentifierRequired
	}
	if upd.Quantity != nil {
		if !upd.Quantity.IsPositive() {
			return ErrQuantityNotPositive
		}
		next.Quantity = *upd.Quantity
	}
	if upd.PurchasePrice != nil {
		price := strings.TrimSpace(*upd.PurchasePrice)
		if _, err := ParsePrice(price); err != nil {
			return err
		}
		next.PurchasePrice = price
	}
	if upd.PurchaseDate != nil {
		purchaseDate, err := ParseDate(*upd.PurchaseDate)
		if err != nil {
			return err
		}
		next.PurchaseDate = purchaseDate
	}
	if upd.Sector != nil {
		next.Sector = strings.TrimSpace(*upd.Sector)
	}
	if upd.Region != nil {
		next.Region = strings.TrimSpace(*upd.Region)
	}
	if upd.AssetClass != nil {
		next.AssetClass = strings.TrimSpace(*upd.AssetClass)
	}
	*holding = next
	return nil
}

// WatchlistInput 自选的输入，新建和局部更新共用
type WatchlistInput struct {
	ISIN       *string `json:"isin"`
	Ticker     *string `json:"ticker"`
	Name       *string `json:"name"`
	Sector     *string `json:"sector"`
	Region     *string `json:"region"`
	AssetClass *string `json:"asset_class"`
	Notes      *string `json:"notes"`
}

// ApplyWatchlist 校验并写入自选字段，失败时条目不变
func ApplyWatchlist(item *models.WatchlistItem, in WatchlistInput) error {
	next := *item
	if in.Name != nil {
		next.Name = strings.TrimSpace(*in.Name)
	}
	if next.Name == "" {
		return ErrNameRequired
	}
	if in.ISIN != nil {
		isin, err := NormalizeISIN(*in.ISIN)
		if err != nil {
			return err
		}
		next.ISIN = isin
	}
	if in.Ticker != nil {
		next.Ticker = NormalizeTicker(*in.Ticker)
	}
	if next.ISIN == "" && next.Ticker == "" {
		return ErrIdentifierRequired
	}
	if in.Sector != nil {
		next.Sector = strings.TrimSpace(*in.Sector)
	}
	if in.Region != nil {
		next.Region = strings.TrimSpace(*in.Region)
	}
	if in.AssetClass != nil {
		next.AssetClass = strings.TrimSpace(*in.AssetClass)
	}
	if in.Notes != nil {
		next.Notes = *in.Notes
	}
	*item = next
	return nil
}
