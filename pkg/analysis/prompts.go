package analysis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "roboadvisor/models"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/portfolio"
)

// PortfolioSystemPrompt 组合分析系统提示词
const PortfolioSystemPrompt = `You are a financial analysis assistant for a portfolio management tool.
Analyse the user's portfolio and return structured JSON using the following schema:

{
  "fundamentalAnalysis": [
    { "ticker": "", "summary": "", "valuation": "fair/undervalued/overvalued" }
  ],
  "technicalAnalysis": [
    { "ticker": "", "trend": "", "rsi": "", "signal": "" }
  ],
  "risks": [
    "Concentration risk: ...",
    "Sector overweight: ...",
    "Cash share: ..."
  ],
  "diversification": {
    "regionBreakdown": {},
    "sectorBreakdown": {},
    "positionWeights": {}
  },
  "cashAssessment": "",
  "suggestedRebalancing": "",
  "shortTermAdvice": "",
  "longTermAdvice": ""
}

Adapt every recommendation to the user's investment horizon and risk profile.
Use clear, non-technical language. No disclaimers or financial advice warnings.`

// SingleAssetSystemPrompt 单资产分析系统提示词
const SingleAssetSystemPrompt = `You are a financial analysis assistant for a portfolio management tool.
Analyse a single security and return structured JSON using the following schema:

{
  "fundamentalAnalysis": {
    "summary": "",
    "valuation": "fair/undervalued/overvalued",
    "strengths": [],
    "weaknesses": [],
    "keyMetrics": {}
  },
  "technicalAnalysis": {
    "trend": "",
    "rsi": "",
    "signal": "buy/hold/sell",
    "supportLevel": "",
    "resistanceLevel": ""
  },
  "risks": [],
  "recommendation": "",
  "priceTarget": ""
}

Adapt every recommendation to the user's investment horizon and risk profile.
Use clear, non-technical language. No disclaimers or financial advice warnings.`

const (
	unknownValue = "Unknown"
	notAvailable = "N/A"
	notSpecified = "not specified"
)

// 无行情源时以买入价上浮10%作为当前价占位
var currentPriceFactor = decimal.RequireFromString("1.1")

type positionLine struct {
	name       string
	identifier string
	quantity   decimal.Decimal
	price      decimal.Decimal
	current    decimal.Decimal
	value      decimal.Decimal
	sector     string
	region     string
	assetClass string
	date       string
}

// BuildPortfolioPrompt 生成组合分析的用户提示词
func BuildPortfolioPrompt(holdings []models.PortfolioHolding, profile *domain.Profile) string {
	return "Analyse the following portfolio:\n\n" + BuildPortfolioContext(holdings, profile) + `

Return a detailed analysis in the given JSON format.
Consider:
- Fundamental valuation of every position
- Technical analysis (trend, RSI, signals)
- Risks (concentration risk, sector concentration, cash share)
- Diversification by region, sector and weighting
- Cash assessment
- Rebalancing suggestions
- Short-term and long-term recommendations`
}

// BuildPortfolioContext 列出全部持仓、总值、分布和用户偏好
func BuildPortfolioContext(holdings []models.PortfolioHolding, profile *domain.Profile) string {
	lines := make([]positionLine, 0, len(holdings))
	total := decimal.Zero
	for i := range holdings {
		h := &holdings[i]
		price, err := portfolio.ParsePrice(h.PurchasePrice)
		if err != nil {
			price = decimal.Zero
		}
		current := price.Mul(currentPriceFactor)
		value := h.Quantity.Mul(current)
		total = total.Add(value)

		identifier := h.Ticker
		if identifier == "" {
			identifier = h.ISIN
		}
		date := ""
		if !h.PurchaseDate.IsZero() {
			date = h.PurchaseDate.Format("2006-01-02")
		}
		lines = append(lines, positionLine{
			name:       orDefault(h.Name, unknownValue),
			identifier: orDefault(identifier, notAvailable),
			quantity:   h.Quantity,
			price:      price,
			current:    current,
			value:      value,
			sector:     orDefault(h.Sector, unknownValue),
			region:     orDefault(h.Region, unknownValue),
			assetClass: orDefault(h.AssetClass, unknownValue),
			date:       orDefault(date, notAvailable),
		})
	}

	var b strings.Builder
	b.WriteString("Portfolio overview:\n\n")
	for _, p := range lines {
		fmt.Fprintf(&b, "- %s (%s): %s units @ %s EUR (currently approx. %s EUR, %s%% of portfolio), "+
			"Sector: %s, Region: %s, Asset class: %s, Purchase date: %s\n",
			p.name, p.identifier, p.quantity.String(), p.price.StringFixed(2), p.current.StringFixed(2),
			percentOf(p.value, total).StringFixed(1), p.sector, p.region, p.assetClass, p.date)
	}
	fmt.Fprintf(&b, "\nTotal portfolio value: %s EUR\n", total.StringFixed(2))

	b.WriteString("\nDiversification:\n")
	b.WriteString("Sectors: " + breakdown(lines, total, func(p positionLine) string { return p.sector }) + "\n")
	b.WriteString("Regions: " + breakdown(lines, total, func(p positionLine) string { return p.region }) + "\n")
	b.WriteString("Asset classes: " + breakdown(lines, total, func(p positionLine) string { return p.assetClass }))

	b.WriteString(profileSection(profile))
	return b.String()
}

// BuildHoldingPrompt 单个持仓的用户提示词
func BuildHoldingPrompt(h *models.PortfolioHolding, profile *domain.Profile) string {
	parts := assetParts(h.Name, h.ISIN, h.Ticker, h.Sector, h.Region, h.AssetClass)
	date := notAvailable
	if !h.PurchaseDate.IsZero() {
		date = h.PurchaseDate.Format("2006-01-02")
	}
	parts = append(parts,
		fmt.Sprintf("Purchase price: %s EUR", orDefault(h.PurchasePrice, notAvailable)),
		fmt.Sprintf("Quantity: %s", h.Quantity.String()),
		fmt.Sprintf("Purchase date: %s", date),
	)
	return singleAssetPrompt(strings.Join(parts, "\n") + profileSection(profile))
}

// BuildWatchlistPrompt 自选条目的用户提示词
func BuildWatchlistPrompt(w *models.WatchlistItem, profile *domain.Profile) string {
	parts := assetParts(w.Name, w.ISIN, w.Ticker, w.Sector, w.Region, w.AssetClass)
	return singleAssetPrompt(strings.Join(parts, "\n") + profileSection(profile))
}

func assetParts(name, isin, ticker, sector, region, assetClass string) []string {
	return []string{
		"Asset analysis for: " + orDefault(name, unknownValue),
		"ISIN: " + orDefault(isin, notAvailable),
		"Ticker: " + orDefault(ticker, notAvailable),
		"Sector: " + orDefault(sector, unknownValue),
		"Region: " + orDefault(region, unknownValue),
		"Asset class: " + orDefault(assetClass, unknownValue),
	}
}

func singleAssetPrompt(context string) string {
	return "Analyse the following security:\n\n" + context + `

Return a detailed analysis in the given JSON format.
Consider:
- Fundamental valuation (strengths, weaknesses, valuation)
- Technical analysis (trend, RSI, signals, support/resistance)
- Risks
- A clear buy/sell/hold recommendation
- Price target (if possible)`
}

func profileSection(profile *domain.Profile) string {
	risk, horizon := notSpecified, notSpecified
	if profile != nil {
		risk = orDefault(profile.RiskProfile, notSpecified)
		horizon = orDefault(profile.InvestmentHorizon, notSpecified)
	}
	return fmt.Sprintf("\n\nUser settings:\nRisk profile: %s\nInvestment horizon: %s", risk, horizon)
}

// breakdown 按首次出现顺序输出各分类占比
func breakdown(lines []positionLine, total decimal.Decimal, key func(positionLine) string) string {
	var order []string
	sums := make(map[string]decimal.Decimal)
	for _, p := range lines {
		k := key(p)
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] = sums[k].Add(p.value)
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s: %s%%", k, percentOf(sums[k], total).StringFixed(1)))
	}
	return strings.Join(parts, ", ")
}

func percentOf(value, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return value.Div(total).Mul(decimal.NewFromInt(100))
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// SectorSystemPrompt 行业归类系统提示词
const SectorSystemPrompt = "You are a financial expert who assigns securities to industry sectors. Answer with JSON only."

// BuildSectorPrompt 一次列出全部持仓，要求按持仓ID返回行业
func BuildSectorPrompt(holdings []models.PortfolioHolding) string {
	var b strings.Builder
	b.WriteString("Determine the industry sector for each of the following securities. " +
		`Answer ONLY with a JSON object in the format {"position_id": "Sector", ...}. ` +
		"Use German sector names such as Technologie, Finanzen, Gesundheitswesen, Konsumgüter, Energie, Industrie. " +
		"If the sector cannot be determined, use '" + UnknownSector + "'.\n\nSecurities:\n")
	for i := range holdings {
		h := &holdings[i]
		info := []string{"Name: " + h.Name}
		if h.ISIN != "" {
			info = append(info, "ISIN: "+h.ISIN)
		}
		if h.Ticker != "" {
			info = append(info, "Ticker: "+h.Ticker)
		}
		fmt.Fprintf(&b, "- ID %d: %s\n", h.ID, strings.Join(info, " | "))
	}
	b.WriteString("\nAnswer ONLY with the JSON object, no further explanation.")
	return b.String()
}
