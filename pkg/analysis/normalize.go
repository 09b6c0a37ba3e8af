package analysis

import (
	"regexp"
	"strconv"
	"strings"

	domain "roboadvisor/models"
)

var numberPattern = regexp.MustCompile(`\d+\.?\d*`)

// NormalizePortfolio 把模型返回的组合分析整理成固定结构，缺失项补默认值
func NormalizePortfolio(raw map[string]any) domain.PortfolioAnalysis {
	result := domain.PortfolioAnalysis{
		FundamentalAnalysis: []domain.FundamentalItem{},
		TechnicalAnalysis:   []domain.TechnicalItem{},
		Risks:               stringList(raw["risks"]),
		Diversification: domain.Diversification{
			RegionBreakdown: map[string]float64{},
			SectorBreakdown: map[string]float64{},
			PositionWeights: map[string]float64{},
		},
		CashAssessment:       text(raw["cashAssessment"]),
		SuggestedRebalancing: text(raw["suggestedRebalancing"]),
		ShortTermAdvice:      text(raw["shortTermAdvice"]),
		LongTermAdvice:       text(raw["longTermAdvice"]),
	}

	if list, ok := raw["fundamentalAnalysis"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			result.FundamentalAnalysis = append(result.FundamentalAnalysis, domain.FundamentalItem{
				Ticker:    text(m["ticker"]),
				Summary:   text(m["summary"]),
				Valuation: enum(m["valuation"], domain.ValuationFair),
			})
		}
	}

	if list, ok := raw["technicalAnalysis"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			result.TechnicalAnalysis = append(result.TechnicalAnalysis, domain.TechnicalItem{
				Ticker: text(m["ticker"]),
				Trend:  enum(m["trend"], domain.DefaultTrend),
				RSI:    enum(m["rsi"], domain.DefaultRSI),
				Signal: enum(m["signal"], domain.SignalHold),
			})
		}
	}

	if div, ok := raw["diversification"].(map[string]any); ok {
		result.Diversification.RegionBreakdown = percentages(div["regionBreakdown"])
		result.Diversification.SectorBreakdown = percentages(div["sectorBreakdown"])
		result.Diversification.PositionWeights = percentages(div["positionWeights"])
	}
	return result
}

// NormalizeSingleAsset 单资产分析的整理
func NormalizeSingleAsset(raw map[string]any) domain.SingleAssetAnalysis {
	result := domain.SingleAssetAnalysis{
		FundamentalAnalysis: domain.AssetFundamental{
			Valuation:  domain.ValuationFair,
			Strengths:  []string{},
			Weaknesses: []string{},
			KeyMetrics: map[string]any{},
		},
		TechnicalAnalysis: domain.AssetTechnical{
			Trend:  domain.DefaultTrend,
			RSI:    domain.DefaultRSI,
			Signal: domain.SignalHold,
		},
		Risks:          stringList(raw["risks"]),
		Recommendation: text(raw["recommendation"]),
		PriceTarget:    optionalText(raw["priceTarget"]),
	}

	if fa, ok := raw["fundamentalAnalysis"].(map[string]any); ok {
		result.FundamentalAnalysis.Summary = text(fa["summary"])
		result.FundamentalAnalysis.Valuation = enum(fa["valuation"], domain.ValuationFair)
		result.FundamentalAnalysis.Strengths = stringList(fa["strengths"])
		result.FundamentalAnalysis.Weaknesses = stringList(fa["weaknesses"])
		if metrics, ok := fa["keyMetrics"].(map[string]any); ok {
			result.FundamentalAnalysis.KeyMetrics = metrics
		}
	}

	if ta, ok := raw["technicalAnalysis"].(map[string]any); ok {
		result.TechnicalAnalysis = domain.AssetTechnical{
			Trend:           enum(ta["trend"], domain.DefaultTrend),
			RSI:             enum(ta["rsi"], domain.DefaultRSI),
			Signal:          enum(ta["signal"], domain.SignalHold),
			SupportLevel:    text(ta["supportLevel"]),
			ResistanceLevel: text(ta["resistanceLevel"]),
		}
	}
	return result
}

// ParsePercentage 把 "70%"、"14.9 %"、"ca. 12%" 或数字转为浮点数，无法识别时为0
func ParsePercentage(value any) float64 {
	if f, ok := number(value); ok {
		return f
	}
	s, ok := value.(string)
	if !ok {
		return 0
	}
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return f
	}
	if match := numberPattern.FindString(cleaned); match != "" {
		if f, err := strconv.ParseFloat(match, 64); err == nil {
			return f
		}
	}
	return 0
}

func percentages(value any) map[string]float64 {
	out := map[string]float64{}
	m, ok := value.(map[string]any)
	if !ok {
		return out
	}
	for k, v := range m {
		out[k] = ParsePercentage(v)
	}
	return out
}

// text 字符串原样返回，数字转为字符串，其它为空
func text(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	if f, ok := number(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// enum 空值取默认
func enum(value any, fallback string) string {
	if s := strings.TrimSpace(text(value)); s != "" {
		return s
	}
	return fallback
}

func optionalText(value any) *string {
	s := strings.TrimSpace(text(value))
	if s == "" {
		return nil
	}
	return &s
}

// stringList 非列表视为空，列表中的非字符串元素丢弃
func stringList(value any) []string {
	out := []string{}
	list, ok := value.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
