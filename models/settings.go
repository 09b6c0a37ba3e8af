package models

// 风险偏好
const (
	RiskConservative = "conservative"
	RiskBalanced     = "balanced"
	RiskGrowth       = "growth"
	RiskAggressive   = "aggressive"
)

// 投资期限
const (
	HorizonShort  = "short"
	HorizonMedium = "medium"
	HorizonLong   = "long"
)

// 分析对象类型
const (
	SubjectPortfolio = "portfolio"
	SubjectWatchlist = "watchlist"
)

var (
	RiskProfiles       = []string{RiskConservative, RiskBalanced, RiskGrowth, RiskAggressive}
	InvestmentHorizons = []string{HorizonShort, HorizonMedium, HorizonLong}
	Languages          = []string{"de", "en"}
	Currencies         = []string{"EUR", "USD", "CHF"}
)

// DefaultNotifications 新用户的通知开关
func DefaultNotifications() map[string]bool {
	return map[string]bool{
		"dailyMarket":       false,
		"weeklySummary":     false,
		"aiRecommendations": false,
		"riskWarnings":      true,
	}
}

// Profile 分析提示词使用的用户偏好
type Profile struct {
	RiskProfile       string `json:"riskProfile"`
	InvestmentHorizon string `json:"investmentHorizon"`
}
