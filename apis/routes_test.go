package apis

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/auth"
	"roboadvisor/pkg/config"
	"roboadvisor/pkg/database"
	"roboadvisor/pkg/llm"
	"roboadvisor/pkg/portfolio"
	"roboadvisor/pkg/ratelimit"
	"roboadvisor/pkg/repository"
	"roboadvisor/pkg/websocket"
)

const stubPortfolioResponse = `{
	"fundamentalAnalysis": [{"ticker": "AAPL", "summary": "Strong cash flow", "valuation": "fair"}],
	"technicalAnalysis": [{"ticker": "AAPL", "trend": "up", "rsi": 55, "signal": "hold"}],
	"risks": ["Single position"],
	"diversification": {"sectorBreakdown": {"Technology": 100}},
	"shortTermAdvice": "Hold",
	"longTermAdvice": "Diversify"
}`

// stubProvider 固定返回同一段JSON
type stubProvider struct {
	response string
	calls    int
}

func (p *stubProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	p.calls++
	return p.response, nil
}

func (p *stubProvider) Name() string { return "stub" }

type testServer struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestServer(t *testing.T, provider llm.Provider, portfolioLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := repository.New(db)

	cfg := &config.Config{
		Server:    config.ServerConfig{CORSOrigins: []string{"*"}},
		JWT:       config.JWTConfig{Secret: "test-secret", Expire: time.Hour},
		LLM:       config.LLMConfig{Provider: "openai"},
		Cache:     config.CacheConfig{Backend: "memory", TTL: time.Hour},
		RateLimit: config.RateLimitConfig{PortfolioLimit: portfolioLimit, AssetLimit: 20, Window: time.Hour},
	}

	ws := websocket.NewManager(cfg.Server.CORSOrigins)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ws.Start(ctx)

	service := analysis.NewService(analysis.Options{
		Client:           analysis.NewClient(provider),
		Store:            repo,
		PortfolioLimiter: ratelimit.New("portfolio", portfolioLimit, time.Hour),
		Notifier:         ws,
	})

	engine := gin.New()
	SetupRoutes(engine, Dependencies{
		Config:    cfg,
		Repo:      repo,
		Tokens:    auth.NewTokenManager(cfg.JWT),
		Analysis:  service,
		WebSocket: ws,
	})
	return &testServer{t: t, engine: engine}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// signup 注册并登录，返回token
func (s *testServer) signup(email string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": "secret123"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/auth/login-json", "", map[string]string{"email": email, "password": "secret123"})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &tok))
	require.Equal(s.t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func (s *testServer) createHolding(token, name, ticker string) uint {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/portfolio", token, map[string]any{
		"name":           name,
		"ticker":         ticker,
		"purchase_date":  "2024-01-15",
		"quantity":       "10",
		"purchase_price": "150.50",
		"sector":         "Technology",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID uint `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &created))
	return created.ID
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	code, _ := body["code"].(string)
	return code
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil, 10)
	token := s.signup("Alice@Example.com")

	w := s.do(http.MethodPost, "/auth/register", "", map[string]string{"email": "alice@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMAIL_TAKEN", errorCode(t, w))

	w = s.do(http.MethodPost, "/auth/register", "", map[string]string{"email": "bob@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/auth/login-json", "", map[string]string{"email": "alice@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, w))

	form := url.Values{"username": {"alice@example.com"}, "password": {"secret123"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	w = s.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"alice@example.com"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil, 10)

	w := s.do(http.MethodGet, "/api/portfolio", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_AUTH_HEADER", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/portfolio", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, w))

	w = s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"llm_configured":false`)

	w = s.do(http.MethodGet, "/api/portfolio/csv-template", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, portfolio.CSVTemplate, w.Body.String())
}

func TestPortfolioCRUDIsScopedToOwner(t *testing.T) {
	s := newTestServer(t, nil, 10)
	alice := s.signup("alice@example.com")
	bob := s.signup("bob@example.com")
	id := s.createHolding(alice, "Apple", "aapl")

	w := s.do(http.MethodGet, "/api/portfolio", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ticker":"AAPL"`)

	path := "/api/portfolio/" + jsonID(id)
	w = s.do(http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	w = s.do(http.MethodPut, path, alice, map[string]any{"sector": "Consumer Electronics"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"sector":"Consumer Electronics"`)

	w = s.do(http.MethodGet, "/api/portfolio/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadCSV(t *testing.T) {
	s := newTestServer(t, nil, 10)
	token := s.signup("alice@example.com")

	upload := func(content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "portfolio.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/portfolio/upload-csv", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		return w
	}

	w := upload(portfolio.CSVTemplate)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Success int      `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Success)
	assert.Empty(t, resp.Errors)

	w = upload("ticker;quantity\nAAPL;1\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_COLUMNS", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/portfolio/dashboard/summary", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/portfolio/dashboard/allocation", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSettingsValidation(t *testing.T) {
	s := newTestServer(t, nil, 10)
	token := s.signup("alice@example.com")

	w := s.do(http.MethodGet, "/api/user/settings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currency":"EUR"`)

	w = s.do(http.MethodPut, "/api/user/settings", token, map[string]any{"language": "fr"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/user/settings", token, map[string]any{
		"riskProfile":   "growth",
		"notifications": map[string]bool{"weeklySummary": true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"riskProfile":"growth"`)
	assert.Contains(t, w.Body.String(), `"weeklySummary":true`)
	assert.Contains(t, w.Body.String(), `"riskWarnings":true`)
}

func TestAnalysisWithoutProvider(t *testing.T) {
	s := newTestServer(t, nil, 10)
	token := s.signup("alice@example.com")

	w := s.do(http.MethodPost, "/api/portfolio/analyze", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, analysis.CodeEmptyPortfolio, errorCode(t, w))

	s.createHolding(token, "Apple", "AAPL")
	w = s.do(http.MethodPost, "/api/portfolio/analyze", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "LLM_NOT_CONFIGURED", errorCode(t, w))

	w = s.do(http.MethodPost, "/api/asset/analyze", token, map[string]any{"asset_type": "portfolio", "asset_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPortfolioAnalysisHistoryAndRateLimit(t *testing.T) {
	provider := &stubProvider{response: stubPortfolioResponse}
	s := newTestServer(t, provider, 2)
	token := s.signup("alice@example.com")
	id := s.createHolding(token, "Apple", "AAPL")

	w := s.do(http.MethodPost, "/api/portfolio/analyze", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"cached":false`)

	w = s.do(http.MethodPost, "/api/portfolio/analyze", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached":true`)
	assert.Equal(t, 1, provider.calls)

	w = s.do(http.MethodPost, "/api/portfolio/analyze", token, map[string]bool{"force_refresh": true})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/analysis-history/portfolio/"+jsonID(id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 1)

	w = s.do(http.MethodGet, "/api/analysis-history/portfolio/999", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/analysis-history/asset?ticker=aapl", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"asset_ticker":"AAPL"`)

	w = s.do(http.MethodGet, "/api/analysis-history/asset", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/analysis-history/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_analyses":1`)
}

func TestDashboardCheckSectors(t *testing.T) {
	provider := &stubProvider{}
	s := newTestServer(t, provider, 10)
	token := s.signup("alice@example.com")

	w := s.do(http.MethodGet, "/api/portfolio/dashboard/check-sectors", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"all_sectors_assigned":true,"assignments":[],"unique_sectors":[],"missing_count":0}`, w.Body.String())
	assert.Zero(t, provider.calls)

	apple := s.createHolding(token, "Apple", "AAPL")
	s.createHolding(token, "Microsoft", "MSFT")
	provider.response = `{"` + jsonID(apple) + `": "Technologie"}`

	w = s.do(http.MethodGet, "/api/portfolio/dashboard/check-sectors", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result analysis.SectorCheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "Technologie", result.Assignments[0].Sector)
	assert.Equal(t, "Technology", result.Assignments[1].Sector)
	assert.Equal(t, []string{"Technologie", "Technology"}, result.UniqueSectors)
	assert.True(t, result.AllSectorsAssigned)
	assert.Equal(t, 1, provider.calls)
}

func TestDeleteAccount(t *testing.T) {
	s := newTestServer(t, nil, 10)
	token := s.signup("alice@example.com")
	s.createHolding(token, "Apple", "AAPL")

	w := s.do(http.MethodPost, "/api/user/data-export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), `"name":"Apple"`)

	w = s.do(http.MethodDelete, "/api/user", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil, 10)
	token := s.signup("alice@example.com")

	w := s.do(http.MethodGet, "/api/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func jsonID(id uint) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
