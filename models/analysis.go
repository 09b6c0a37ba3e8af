package models

// 估值
const (
	ValuationFair        = "fair"
	ValuationUndervalued = "undervalued"
	ValuationOvervalued  = "overvalued"
)

// 技术信号
const (
	SignalBuy  = "buy"
	SignalHold = "hold"
	SignalSell = "sell"
)

// 占位默认值
const (
	DefaultTrend = "neutral"
	DefaultRSI   = "N/A"
)

// FundamentalItem 组合分析中单个持仓的基本面条目
type FundamentalItem struct {
	Ticker    string `json:"ticker"`
	Summary   string `json:"summary"`
	Valuation string `json:"valuation"`
}

// TechnicalItem 组合分析中单个持仓的技术面条目
type TechnicalItem struct {
	Ticker string `json:"ticker"`
	Trend  string `json:"trend"`
	RSI    string `json:"rsi"`
	Signal string `json:"signal"`
}

// Diversification 分散度
type Diversification struct {
	RegionBreakdown map[string]float64 `json:"regionBreakdown"`
	SectorBreakdown map[string]float64 `json:"sectorBreakdown"`
	PositionWeights map[string]float64 `json:"positionWeights"`
}

// PortfolioAnalysis 组合级分析结果
type PortfolioAnalysis struct {
	FundamentalAnalysis  []FundamentalItem `json:"fundamentalAnalysis"`
	TechnicalAnalysis    []TechnicalItem   `json:"technicalAnalysis"`
	Risks                []string          `json:"risks"`
	Diversification      Diversification   `json:"diversification"`
	CashAssessment       string            `json:"cashAssessment"`
	SuggestedRebalancing string            `json:"suggestedRebalancing"`
	ShortTermAdvice      string            `json:"shortTermAdvice"`
	LongTermAdvice       string            `json:"longTermAdvice"`
}

// AssetFundamental 单资产基本面
type AssetFundamental struct {
	Summary    string         `json:"summary"`
	Valuation  string         `json:"valuation"`
	Strengths  []string       `json:"strengths"`
	Weaknesses []string       `json:"weaknesses"`
	KeyMetrics map[string]any `json:"keyMetrics"`
}

// AssetTechnical 单资产技术面
type AssetTechnical struct {
	Trend           string `json:"trend"`
	RSI             string `json:"rsi"`
	Signal          string `json:"signal"`
	SupportLevel    string `json:"supportLevel"`
	ResistanceLevel string `json:"resistanceLevel"`
}

// SingleAssetAnalysis 单资产分析结果
type SingleAssetAnalysis struct {
	FundamentalAnalysis AssetFundamental `json:"fundamentalAnalysis"`
	TechnicalAnalysis   AssetTechnical   `json:"technicalAnalysis"`
	Risks               []string         `json:"risks"`
	Recommendation      string           `json:"recommendation"`
	PriceTarget         *string          `json:"priceTarget"`
}

// HoldingAnalysis 组合分析拆分到单个持仓后写入历史的内容
type HoldingAnalysis struct {
	FundamentalAnalysis FundamentalItem `json:"fundamentalAnalysis"`
	TechnicalAnalysis   TechnicalItem   `json:"technicalAnalysis"`
	Risks               []string        `json:"risks,omitempty"`
	ShortTermAdvice     string          `json:"shortTermAdvice,omitempty"`
	LongTermAdvice      string          `json:"longTermAdvice,omitempty"`
	PortfolioAnalysis   bool            `json:"portfolioAnalysis"`
	Matched             bool            `json:"matched"`
	AnalysisDate        string          `json:"analysisDate"`
}
