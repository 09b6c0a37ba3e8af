package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domain "roboadvisor/models"
	"roboadvisor/pkg/cache"
	"roboadvisor/pkg/llm"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/ratelimit"
)

const portfolioResponse = `{
	"fundamentalAnalysis": [
		{"ticker": "AAPL", "summary": "Strong cash flow", "valuation": "overvalued"},
		{"ticker": "MSFT", "summary": "Cloud growth", "valuation": "fair"}
	],
	"technicalAnalysis": [
		{"ticker": "AAPL", "trend": "up", "rsi": 64, "signal": "hold"},
		{"ticker": "MSFT", "trend": "up", "rsi": "58", "signal": "buy"}
	],
	"risks": ["Concentration risk: technology"],
	"diversification": {"sectorBreakdown": {"Technology": "80%"}},
	"shortTermAdvice": "Keep positions",
	"longTermAdvice": "Add non-tech exposure"
}`

const assetResponse = `{
	"fundamentalAnalysis": {"summary": "Market leader", "valuation": "undervalued"},
	"technicalAnalysis": {"trend": "up", "rsi": 52, "signal": "buy"},
	"risks": ["Regulation"],
	"recommendation": "buy",
	"priceTarget": 250
}`

type fixture struct {
	store    *memoryStore
	provider *MockProvider
	cache    *cache.MemoryStore
	notifier *recordingNotifier
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemoryStore(),
		provider: new(MockProvider),
		cache:    cache.NewMemoryStore(),
		notifier: &recordingNotifier{},
	}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f.service = NewService(Options{
		Client:   NewClient(f.provider),
		Store:    f.store,
		Cache:    f.cache,
		Notifier: f.notifier,
		Now:      func() time.Time { return now },
	})
	return f
}

func (f *fixture) addThreeHoldings(userID uint) {
	f.store.holdings[userID] = []models.PortfolioHolding{
		{ID: 1, UserID: userID, Name: "Apple", Ticker: "AAPL", ISIN: "US0378331005", Quantity: decimal.NewFromInt(10), PurchasePrice: "150.50", Sector: "Technology"},
		{ID: 2, UserID: userID, Name: "Microsoft", Ticker: "MSFT", Quantity: decimal.NewFromInt(5), PurchasePrice: "380,25", Sector: "Technology"},
		{ID: 3, UserID: userID, Name: "BASF", ISIN: "DE000BASF111", Quantity: decimal.RequireFromString("11.532"), PurchasePrice: "77.0855", Sector: "Chemicals"},
	}
}

func TestAnalyzePortfolioEmpty(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, CodeEmptyPortfolio, validation.Code)
	assert.Empty(t, f.store.records())
	assert.Zero(t, f.cache.Len())
	f.provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAnalyzePortfolioDecomposesPerHolding(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(portfolioResponse, nil).Once()

	result, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Len(t, result.FundamentalAnalysis, 2)
	assert.Equal(t, 80.0, result.Diversification.SectorBreakdown["Technology"])

	records := f.store.records()
	require.Len(t, records, 3)
	assert.Equal(t, 1, f.cache.Len())

	var matched, placeholders int
	for _, rec := range records {
		require.NoError(t, rec.ValidateSubject())
		require.NotNil(t, rec.PortfolioHoldingID)

		var payload domain.HoldingAnalysis
		require.NoError(t, json.Unmarshal(rec.AnalysisData, &payload))
		assert.True(t, payload.PortfolioAnalysis)
		assert.Equal(t, []string{"Concentration risk: technology"}, payload.Risks)
		if payload.Matched {
			matched++
			continue
		}
		placeholders++
		assert.Equal(t, uint(3), *rec.PortfolioHoldingID)
		assert.Equal(t, "DE000BASF111", payload.FundamentalAnalysis.Ticker)
		assert.Equal(t, PlaceholderSummary, payload.FundamentalAnalysis.Summary)
		assert.Equal(t, domain.ValuationFair, payload.FundamentalAnalysis.Valuation)
		assert.Equal(t, domain.SignalHold, payload.TechnicalAnalysis.Signal)
		assert.Equal(t, domain.DefaultRSI, payload.TechnicalAnalysis.RSI)
	}
	assert.Equal(t, 2, matched)
	assert.Equal(t, 1, placeholders)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, EventAnalysisCompleted, f.notifier.events[0].eventType)
	f.provider.AssertExpectations(t)
}

func TestAnalyzePortfolioServedFromCache(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(portfolioResponse, nil).Once()

	first, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)

	second, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, first.GeneratedAt.Equal(second.GeneratedAt))
	assert.Equal(t, first.PortfolioAnalysis, second.PortfolioAnalysis)

	f.provider.AssertNumberOfCalls(t, "Complete", 1)
	assert.Len(t, f.store.records(), 3)
}

func TestAnalyzePortfolioForceRefresh(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(portfolioResponse, nil).Once()
	refreshed := `{"fundamentalAnalysis": [], "technicalAnalysis": [], "shortTermAdvice": "Sell everything"}`
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(refreshed, nil).Once()

	_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)

	result, err := f.service.AnalyzePortfolio(context.Background(), 1, true)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, "Sell everything", result.ShortTermAdvice)
	f.provider.AssertNumberOfCalls(t, "Complete", 2)

	cached, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, "Sell everything", cached.ShortTermAdvice)
	assert.Len(t, f.store.records(), 6)
}

func TestAnalyzePortfolioRateLimited(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.service.portfolioLimiter = ratelimit.New("portfolio", 1, time.Hour)
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(portfolioResponse, nil).Once()

	_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)

	_, err = f.service.AnalyzePortfolio(context.Background(), 1, false)
	var limited *RateLimitExceeded
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 1, limited.Limit)
	assert.True(t, IsRateLimited(err))
	f.provider.AssertNumberOfCalls(t, "Complete", 1)
}

func TestAnalyzePortfolioFailuresLeaveNoTrace(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		check    func(error) bool
	}{
		{"provider error", "", errors.New("connection reset"), IsProviderExecution},
		{"not configured", "", llm.ErrNotConfigured, IsConfiguration},
		{"invalid json", "Sorry, I cannot help with that.", nil, IsResponseParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addThreeHoldings(1)
			f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(tt.response, tt.err).Once()

			_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type %T", err)
			assert.Empty(t, f.store.records())
			assert.Zero(t, f.cache.Len())
		})
	}
}

func TestAnalyzePortfolioPersistFailureSkipsCache(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.store.insertErr = errors.New("disk full")
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(portfolioResponse, nil).Once()

	_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.Error(t, err)
	assert.Zero(t, f.cache.Len())
	assert.Empty(t, f.notifier.events)
}

func TestAnalyzePortfolioWithoutProvider(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.service.client = NewClient(nil)

	_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	assert.True(t, IsConfiguration(err))
}

func TestResponseParseErrorSnippet(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(string(long), nil).Once()

	_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	var parseErr *ResponseParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Len(t, parseErr.Snippet, 500)
}

func TestAnalyzeSingleAsset(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.store.watchlist[1] = []models.WatchlistItem{{ID: 7, UserID: 1, Name: "SAP", Ticker: "SAP"}}
	f.provider.On("Complete", SingleAssetSystemPrompt, mock.Anything).Return(assetResponse, nil).Twice()

	result, err := f.service.AnalyzeSingleAsset(context.Background(), 1, domain.SubjectPortfolio, 1, false)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, "Apple", result.AssetName)
	assert.Equal(t, domain.ValuationUndervalued, result.FundamentalAnalysis.Valuation)
	require.NotNil(t, result.PriceTarget)
	assert.Equal(t, "250", *result.PriceTarget)

	again, err := f.service.AnalyzeSingleAsset(context.Background(), 1, domain.SubjectPortfolio, 1, false)
	require.NoError(t, err)
	assert.True(t, again.Cached)

	watch, err := f.service.AnalyzeSingleAsset(context.Background(), 1, domain.SubjectWatchlist, 7, false)
	require.NoError(t, err)
	assert.False(t, watch.Cached)

	records := f.store.records()
	require.Len(t, records, 2)
	assert.NotNil(t, records[0].PortfolioHoldingID)
	assert.NotNil(t, records[1].WatchlistItemID)
	assert.Nil(t, records[1].PortfolioHoldingID)
	f.provider.AssertExpectations(t)
}

func TestAnalyzeSingleAssetValidation(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)

	_, err := f.service.AnalyzeSingleAsset(context.Background(), 1, "bond", 1, false)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, CodeInvalidSubjectType, validation.Code)

	_, err = f.service.AnalyzeSingleAsset(context.Background(), 2, domain.SubjectPortfolio, 1, false)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, CodeNotFound, validation.Code)

	f.provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAnalyzeWatchlist(t *testing.T) {
	f := newFixture(t)
	f.store.watchlist[1] = []models.WatchlistItem{
		{ID: 7, UserID: 1, Name: "SAP", Ticker: "SAP"},
		{ID: 8, UserID: 1, Name: "Siemens", ISIN: "DE0007236101"},
	}
	f.provider.On("Complete", SingleAssetSystemPrompt, mock.Anything).Return(assetResponse, nil).Twice()

	results, err := f.service.AnalyzeWatchlist(context.Background(), 1, nil, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint(8), results[1].ItemID)
	assert.Len(t, f.store.records(), 2)

	one := uint(7)
	cached, err := f.service.AnalyzeWatchlist(context.Background(), 1, &one, false)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.True(t, cached[0].Cached)
	f.provider.AssertNumberOfCalls(t, "Complete", 2)
}

func TestAnalyzeWatchlistStopsOnProviderError(t *testing.T) {
	f := newFixture(t)
	f.store.watchlist[1] = []models.WatchlistItem{
		{ID: 7, UserID: 1, Name: "SAP", Ticker: "SAP"},
		{ID: 8, UserID: 1, Name: "Siemens", Ticker: "SIE"},
	}
	f.provider.On("Complete", SingleAssetSystemPrompt, mock.Anything).Return(assetResponse, nil).Once()
	f.provider.On("Complete", SingleAssetSystemPrompt, mock.Anything).Return("", errors.New("timeout")).Once()

	_, err := f.service.AnalyzeWatchlist(context.Background(), 1, nil, false)
	assert.True(t, IsProviderExecution(err))
	assert.Len(t, f.store.records(), 1)
}

func TestAnalyzeWatchlistEmpty(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.AnalyzeWatchlist(context.Background(), 1, nil, false)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, CodeNoWatchlistItems, validation.Code)
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(portfolioResponse, nil).Twice()

	_, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)
	f.service.InvalidateCache(1)

	result, err := f.service.AnalyzePortfolio(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	f.provider.AssertNumberOfCalls(t, "Complete", 2)
}

func TestRefreshPortfolioBypassesCacheAndLimiter(t *testing.T) {
	f := newFixture(t)
	f.addThreeHoldings(1)
	f.service.portfolioLimiter = ratelimit.New("portfolio", 1, time.Hour)
	f.provider.On("Complete", PortfolioSystemPrompt, mock.Anything).Return(portfolioResponse, nil).Times(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.service.RefreshPortfolio(context.Background(), 1, f.store.holdings[1]))
	}
	assert.Len(t, f.store.records(), 9)
	assert.Zero(t, f.cache.Len())
}

func TestInvalidateUserDropsEveryScope(t *testing.T) {
	f := newFixture(t)
	holdingID, itemID := uint(1), uint(7)
	for _, key := range []string{
		cache.Key(cache.ScopePortfolio, 1, nil),
		cache.Key(cache.ScopeAsset, 1, &holdingID),
		cache.Key(cache.ScopeWatchlist, 1, &itemID),
		cache.Key(cache.ScopePortfolio, 2, nil),
	} {
		f.cache.Set(key, []byte(`{}`), time.Hour)
	}

	f.service.InvalidateUser(1, []uint{holdingID}, []uint{itemID})
	assert.Equal(t, 1, f.cache.Len())
	_, ok := f.cache.Get(cache.Key(cache.ScopePortfolio, 2, nil))
	assert.True(t, ok)
}
