package analysis

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	domain "roboadvisor/models"
	"roboadvisor/pkg/models"
)

// PlaceholderSummary 组合分析中没有对应条目的持仓
const PlaceholderSummary = "No analysis available for this position."

// DecomposePortfolio 把一次组合分析拆成每个持仓一条历史记录。
// 持仓按 ticker > ISIN > 名称 与分析条目的 ticker 精确匹配，未匹配的写中性占位。
func DecomposePortfolio(userID uint, holdings []models.PortfolioHolding, result *domain.PortfolioAnalysis, at time.Time) ([]models.AnalysisHistory, error) {
	fundamentals := make(map[string]domain.FundamentalItem, len(result.FundamentalAnalysis))
	for _, item := range result.FundamentalAnalysis {
		if _, seen := fundamentals[item.Ticker]; !seen {
			fundamentals[item.Ticker] = item
		}
	}
	technicals := make(map[string]domain.TechnicalItem, len(result.TechnicalAnalysis))
	for _, item := range result.TechnicalAnalysis {
		if _, seen := technicals[item.Ticker]; !seen {
			technicals[item.Ticker] = item
		}
	}

	records := make([]models.AnalysisHistory, 0, len(holdings))
	for i := range holdings {
		h := &holdings[i]
		key := h.MatchKey()

		fundamental, fundOK := fundamentals[key]
		if !fundOK {
			fundamental = domain.FundamentalItem{Ticker: key, Summary: PlaceholderSummary, Valuation: domain.ValuationFair}
		}
		technical, techOK := technicals[key]
		if !techOK {
			technical = domain.TechnicalItem{Ticker: key, Trend: domain.DefaultTrend, RSI: domain.DefaultRSI, Signal: domain.SignalHold}
		}

		payload, err := json.Marshal(domain.HoldingAnalysis{
			FundamentalAnalysis: fundamental,
			TechnicalAnalysis:   technical,
			Risks:               result.Risks,
			ShortTermAdvice:     result.ShortTermAdvice,
			LongTermAdvice:      result.LongTermAdvice,
			PortfolioAnalysis:   true,
			Matched:             fundOK || techOK,
			AnalysisDate:        at.Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("encode holding %d analysis: %w", h.ID, err)
		}

		holdingID := h.ID
		records = append(records, models.AnalysisHistory{
			UserID:             userID,
			PortfolioHoldingID: &holdingID,
			AssetName:          h.Name,
			AssetISIN:          h.ISIN,
			AssetTicker:        h.Ticker,
			AnalysisData:       datatypes.JSON(payload),
			CreatedAt:          at,
		})
	}
	return records, nil
}

// HoldingRecord 单个持仓分析的历史记录
func HoldingRecord(userID uint, h *models.PortfolioHolding, result *domain.SingleAssetAnalysis, at time.Time) (models.AnalysisHistory, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return models.AnalysisHistory{}, fmt.Errorf("encode holding %d analysis: %w", h.ID, err)
	}
	holdingID := h.ID
	return models.AnalysisHistory{
		UserID:             userID,
		PortfolioHoldingID: &holdingID,
		AssetName:          h.Name,
		AssetISIN:          h.ISIN,
		AssetTicker:        h.Ticker,
		AnalysisData:       datatypes.JSON(payload),
		CreatedAt:          at,
	}, nil
}

// WatchlistRecord 自选分析的历史记录
func WatchlistRecord(userID uint, w *models.WatchlistItem, result *domain.SingleAssetAnalysis, at time.Time) (models.AnalysisHistory, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return models.AnalysisHistory{}, fmt.Errorf("encode watchlist item %d analysis: %w", w.ID, err)
	}
	itemID := w.ID
	return models.AnalysisHistory{
		UserID:          userID,
		WatchlistItemID: &itemID,
		AssetName:       w.Name,
		AssetISIN:       w.ISIN,
		AssetTicker:     w.Ticker,
		AnalysisData:    datatypes.JSON(payload),
		CreatedAt:       at,
	}, nil
}
