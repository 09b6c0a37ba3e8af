package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	domain "roboadvisor/models"
	"roboadvisor/pkg/cache"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/ratelimit"
	"roboadvisor/pkg/repository"
)

// EventAnalysisCompleted 分析完成后推送给用户的事件类型
const EventAnalysisCompleted = "analysis.completed"

// Store 编排需要的数据访问
type Store interface {
	ListHoldings(ctx context.Context, userID uint) ([]models.PortfolioHolding, error)
	GetHolding(ctx context.Context, userID, id uint) (*models.PortfolioHolding, error)
	ListWatchlist(ctx context.Context, userID uint) ([]models.WatchlistItem, error)
	GetWatchlistItem(ctx context.Context, userID, id uint) (*models.WatchlistItem, error)
	GetProfile(ctx context.Context, userID uint) (*domain.Profile, error)
	InsertHistory(ctx context.Context, records []models.AnalysisHistory) error
}

// Notifier 实时事件推送，必须非阻塞
type Notifier interface {
	PublishToUser(userID uint, eventType string, data interface{})
}

// PortfolioResult 组合分析响应
type PortfolioResult struct {
	domain.PortfolioAnalysis
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AssetResult 单资产分析响应
type AssetResult struct {
	domain.SingleAssetAnalysis
	AssetType   string    `json:"asset_type"`
	AssetID     uint      `json:"asset_id"`
	AssetName   string    `json:"asset_name"`
	AssetISIN   string    `json:"asset_isin"`
	AssetTicker string    `json:"asset_ticker"`
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at"`
}

// WatchlistResult 自选分析响应中的一项
type WatchlistResult struct {
	ItemID      uint   `json:"item_id"`
	AssetName   string `json:"asset_name"`
	AssetISIN   string `json:"asset_isin"`
	AssetTicker string `json:"asset_ticker"`
	domain.SingleAssetAnalysis
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at"`
}

// cachedAnalysis 缓存中保存的内容
type cachedAnalysis[T any] struct {
	Analysis    T         `json:"analysis"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Options 编排服务的依赖
type Options struct {
	Client           *Client
	Store            Store
	Cache            cache.Store
	CacheTTL         time.Duration
	PortfolioLimiter *ratelimit.Limiter
	AssetLimiter     *ratelimit.Limiter
	Notifier         Notifier
	Now              func() time.Time
}

// Service 分析编排服务
type Service struct {
	client           *Client
	store            Store
	cache            cache.Store
	ttl              time.Duration
	portfolioLimiter *ratelimit.Limiter
	assetLimiter     *ratelimit.Limiter
	notifier         Notifier
	now              func() time.Time
}

// NewService 创建编排服务，未提供的依赖使用默认值
func NewService(opts Options) *Service {
	s := &Service{
		client:           opts.Client,
		store:            opts.Store,
		cache:            opts.Cache,
		ttl:              opts.CacheTTL,
		portfolioLimiter: opts.PortfolioLimiter,
		assetLimiter:     opts.AssetLimiter,
		notifier:         opts.Notifier,
		now:              opts.Now,
	}
	if s.client == nil {
		s.client = NewClient(nil)
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryStore()
	}
	if s.ttl <= 0 {
		s.ttl = cache.DefaultTTL
	}
	if s.portfolioLimiter == nil {
		s.portfolioLimiter = ratelimit.New("portfolio", ratelimit.DefaultPortfolioLimit, ratelimit.DefaultWindow)
	}
	if s.assetLimiter == nil {
		s.assetLimiter = ratelimit.New("asset", ratelimit.DefaultAssetLimit, ratelimit.DefaultWindow)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Configured 是否配置了分析模型
func (s *Service) Configured() bool {
	return s.client.Configured()
}

// AnalyzePortfolio 组合分析：限流 → 读取持仓 → 缓存 → 调用模型 → 写历史 → 写缓存
func (s *Service) AnalyzePortfolio(ctx context.Context, userID uint, forceRefresh bool) (*PortfolioResult, error) {
	if !s.portfolioLimiter.Allow(userID) {
		return nil, NewRateLimitExceeded(s.portfolioLimiter.Limit(), s.portfolioLimiter.Window())
	}

	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	if len(holdings) == 0 {
		return nil, NewValidationError(CodeEmptyPortfolio, "portfolio is empty, add positions first")
	}

	key := cache.Key(cache.ScopePortfolio, userID, nil)
	if !forceRefresh {
		if hit, ok := cacheGet[domain.PortfolioAnalysis](s.cache, key); ok {
			logrus.Infof("组合分析缓存命中 user=%d", userID)
			return &PortfolioResult{PortfolioAnalysis: hit.Analysis, Cached: true, GeneratedAt: hit.GeneratedAt}, nil
		}
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	result, generatedAt, err := s.runPortfolio(ctx, userID, holdings, profile)
	if err != nil {
		return nil, err
	}

	cachePut(s.cache, key, result, generatedAt, s.ttl)
	s.publish(userID, cache.ScopePortfolio, nil, generatedAt)

	logrus.WithFields(logrus.Fields{
		"userID":   userID,
		"holdings": len(holdings),
		"force":    forceRefresh,
	}).Info("组合分析完成")
	return &PortfolioResult{PortfolioAnalysis: *result, GeneratedAt: generatedAt}, nil
}

// AnalyzeSingleAsset 分析单个持仓或自选条目
func (s *Service) AnalyzeSingleAsset(ctx context.Context, userID uint, subjectType string, subjectID uint, forceRefresh bool) (*AssetResult, error) {
	if !s.assetLimiter.Allow(userID) {
		return nil, NewRateLimitExceeded(s.assetLimiter.Limit(), s.assetLimiter.Window())
	}

	switch subjectType {
	case domain.SubjectPortfolio:
		holding, err := s.store.GetHolding(ctx, userID, subjectID)
		if err != nil {
			return nil, notFound(err, "portfolio holding")
		}
		profile, err := s.store.GetProfile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		analysis, generatedAt, cached, err := s.analyzeHoldingCached(ctx, userID, holding, profile, forceRefresh)
		if err != nil {
			return nil, err
		}
		return &AssetResult{
			SingleAssetAnalysis: *analysis,
			AssetType:           subjectType,
			AssetID:             holding.ID,
			AssetName:           holding.Name,
			AssetISIN:           holding.ISIN,
			AssetTicker:         holding.Ticker,
			Cached:              cached,
			GeneratedAt:         generatedAt,
		}, nil

	case domain.SubjectWatchlist:
		item, err := s.store.GetWatchlistItem(ctx, userID, subjectID)
		if err != nil {
			return nil, notFound(err, "watchlist item")
		}
		profile, err := s.store.GetProfile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		analysis, generatedAt, cached, err := s.analyzeWatchlistCached(ctx, userID, item, profile, forceRefresh)
		if err != nil {
			return nil, err
		}
		return &AssetResult{
			SingleAssetAnalysis: *analysis,
			AssetType:           subjectType,
			AssetID:             item.ID,
			AssetName:           item.Name,
			AssetISIN:           item.ISIN,
			AssetTicker:         item.Ticker,
			Cached:              cached,
			GeneratedAt:         generatedAt,
		}, nil

	default:
		return nil, NewValidationError(CodeInvalidSubjectType,
			fmt.Sprintf("invalid asset_type %q, must be %q or %q", subjectType, domain.SubjectPortfolio, domain.SubjectWatchlist))
	}
}

// AnalyzeWatchlist 分析一个或全部自选条目；任一条目调用失败即返回，已写入的记录保留
func (s *Service) AnalyzeWatchlist(ctx context.Context, userID uint, itemID *uint, forceRefresh bool) ([]WatchlistResult, error) {
	if !s.assetLimiter.Allow(userID) {
		return nil, NewRateLimitExceeded(s.assetLimiter.Limit(), s.assetLimiter.Window())
	}

	var items []models.WatchlistItem
	if itemID != nil {
		item, err := s.store.GetWatchlistItem(ctx, userID, *itemID)
		if err != nil {
			return nil, notFound(err, "watchlist item")
		}
		items = []models.WatchlistItem{*item}
	} else {
		list, err := s.store.ListWatchlist(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load watchlist: %w", err)
		}
		items = list
	}
	if len(items) == 0 {
		return nil, NewValidationError(CodeNoWatchlistItems, "no watchlist items found")
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	results := make([]WatchlistResult, 0, len(items))
	for i := range items {
		item := &items[i]
		analysis, generatedAt, cached, err := s.analyzeWatchlistCached(ctx, userID, item, profile, forceRefresh)
		if err != nil {
			logrus.Errorf("自选分析失败 user=%d item=%d: %v", userID, item.ID, err)
			return nil, err
		}
		results = append(results, WatchlistResult{
			ItemID:              item.ID,
			AssetName:           item.Name,
			AssetISIN:           item.ISIN,
			AssetTicker:         item.Ticker,
			SingleAssetAnalysis: *analysis,
			Cached:              cached,
			GeneratedAt:         generatedAt,
		})
	}
	return results, nil
}

// RefreshPortfolio 不经限流和缓存直接分析并写历史，供批处理使用
func (s *Service) RefreshPortfolio(ctx context.Context, userID uint, holdings []models.PortfolioHolding) error {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	_, _, err = s.runPortfolio(ctx, userID, holdings, profile)
	return err
}

// RefreshWatchlistItem 不经限流和缓存分析单个自选条目
func (s *Service) RefreshWatchlistItem(ctx context.Context, userID uint, item *models.WatchlistItem) error {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	_, _, err = s.runWatchlistItem(ctx, userID, item, profile)
	return err
}

// InvalidateCache 清除用户的组合分析缓存
func (s *Service) InvalidateCache(userID uint) {
	s.cache.Invalidate(cache.Key(cache.ScopePortfolio, userID, nil))
	logrus.Infof("已清除组合分析缓存 user=%d", userID)
}

// InvalidateHolding 持仓变更后清除组合和该持仓的缓存
func (s *Service) InvalidateHolding(userID, holdingID uint) {
	s.cache.Invalidate(cache.Key(cache.ScopePortfolio, userID, nil))
	s.cache.Invalidate(cache.Key(cache.ScopeAsset, userID, &holdingID))
}

// InvalidateWatchlistItem 自选变更后清除该条目的缓存
func (s *Service) InvalidateWatchlistItem(userID, itemID uint) {
	s.cache.Invalidate(cache.Key(cache.ScopeWatchlist, userID, &itemID))
}

// InvalidateUser 删除账户时清除该用户全部分析缓存
func (s *Service) InvalidateUser(userID uint, holdingIDs, itemIDs []uint) {
	s.InvalidateCache(userID)
	for i := range holdingIDs {
		s.cache.Invalidate(cache.Key(cache.ScopeAsset, userID, &holdingIDs[i]))
	}
	for i := range itemIDs {
		s.InvalidateWatchlistItem(userID, itemIDs[i])
	}
}

func (s *Service) runPortfolio(ctx context.Context, userID uint, holdings []models.PortfolioHolding, profile *domain.Profile) (*domain.PortfolioAnalysis, time.Time, error) {
	result, err := s.client.AnalyzePortfolio(ctx, holdings, profile)
	if err != nil {
		return nil, time.Time{}, err
	}

	generatedAt := s.now().UTC()
	records, err := DecomposePortfolio(userID, holdings, result, generatedAt)
	if err != nil {
		return nil, time.Time{}, err
	}
	if err := s.store.InsertHistory(ctx, records); err != nil {
		return nil, time.Time{}, fmt.Errorf("save analysis history: %w", err)
	}
	return result, generatedAt, nil
}

func (s *Service) runHolding(ctx context.Context, userID uint, holding *models.PortfolioHolding, profile *domain.Profile) (*domain.SingleAssetAnalysis, time.Time, error) {
	result, err := s.client.AnalyzeHolding(ctx, holding, profile)
	if err != nil {
		return nil, time.Time{}, err
	}
	generatedAt := s.now().UTC()
	record, err := HoldingRecord(userID, holding, result, generatedAt)
	if err != nil {
		return nil, time.Time{}, err
	}
	if err := s.store.InsertHistory(ctx, []models.AnalysisHistory{record}); err != nil {
		return nil, time.Time{}, fmt.Errorf("save analysis history: %w", err)
	}
	return result, generatedAt, nil
}

func (s *Service) runWatchlistItem(ctx context.Context, userID uint, item *models.WatchlistItem, profile *domain.Profile) (*domain.SingleAssetAnalysis, time.Time, error) {
	result, err := s.client.AnalyzeWatchlistItem(ctx, item, profile)
	if err != nil {
		return nil, time.Time{}, err
	}
	generatedAt := s.now().UTC()
	record, err := WatchlistRecord(userID, item, result, generatedAt)
	if err != nil {
		return nil, time.Time{}, err
	}
	if err := s.store.InsertHistory(ctx, []models.AnalysisHistory{record}); err != nil {
		return nil, time.Time{}, fmt.Errorf("save analysis history: %w", err)
	}
	return result, generatedAt, nil
}

func (s *Service) analyzeHoldingCached(ctx context.Context, userID uint, holding *models.PortfolioHolding, profile *domain.Profile, force bool) (*domain.SingleAssetAnalysis, time.Time, bool, error) {
	id := holding.ID
	key := cache.Key(cache.ScopeAsset, userID, &id)
	if !force {
		if hit, ok := cacheGet[domain.SingleAssetAnalysis](s.cache, key); ok {
			return &hit.Analysis, hit.GeneratedAt, true, nil
		}
	}
	result, generatedAt, err := s.runHolding(ctx, userID, holding, profile)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	cachePut(s.cache, key, result, generatedAt, s.ttl)
	s.publish(userID, cache.ScopeAsset, &id, generatedAt)
	return result, generatedAt, false, nil
}

func (s *Service) analyzeWatchlistCached(ctx context.Context, userID uint, item *models.WatchlistItem, profile *domain.Profile, force bool) (*domain.SingleAssetAnalysis, time.Time, bool, error) {
	id := item.ID
	key := cache.Key(cache.ScopeWatchlist, userID, &id)
	if !force {
		if hit, ok := cacheGet[domain.SingleAssetAnalysis](s.cache, key); ok {
			return &hit.Analysis, hit.GeneratedAt, true, nil
		}
	}
	result, generatedAt, err := s.runWatchlistItem(ctx, userID, item, profile)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	cachePut(s.cache, key, result, generatedAt, s.ttl)
	s.publish(userID, cache.ScopeWatchlist, &id, generatedAt)
	return result, generatedAt, false, nil
}

func (s *Service) publish(userID uint, scope string, subjectID *uint, generatedAt time.Time) {
	if s.notifier == nil {
		return
	}
	data := map[string]interface{}{
		"scope":        scope,
		"generated_at": generatedAt,
	}
	if subjectID != nil {
		data["subject_id"] = *subjectID
	}
	s.notifier.PublishToUser(userID, EventAnalysisCompleted, data)
}

func cacheGet[T any](store cache.Store, key string) (*cachedAnalysis[T], bool) {
	payload, ok := store.Get(key)
	if !ok {
		return nil, false
	}
	var entry cachedAnalysis[T]
	if err := json.Unmarshal(payload, &entry); err != nil {
		logrus.Warnf("缓存内容无法解析，忽略: %v", err)
		store.Invalidate(key)
		return nil, false
	}
	return &entry, true
}

func cachePut[T any](store cache.Store, key string, analysis *T, generatedAt time.Time, ttl time.Duration) {
	payload, err := json.Marshal(cachedAnalysis[T]{Analysis: *analysis, GeneratedAt: generatedAt})
	if err != nil {
		logrus.Warnf("序列化缓存内容失败: %v", err)
		return
	}
	store.Set(key, payload, ttl)
}

func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NewValidationError(CodeNotFound, what+" not found")
	}
	return fmt.Errorf("load %s: %w", what, err)
}
