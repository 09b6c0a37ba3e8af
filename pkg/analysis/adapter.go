// Package analysis 分析客户端与编排：限流、缓存、调用模型、规范化、写历史。
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	domain "roboadvisor/models"
	"roboadvisor/pkg/llm"
	"roboadvisor/pkg/models"
)

// Client 大模型分析适配器，不做重试
type Client struct {
	provider llm.Provider
}

// NewClient provider 为 nil 时所有调用返回 ConfigurationError
func NewClient(provider llm.Provider) *Client {
	return &Client{provider: provider}
}

// Configured 是否配置了提供方
func (c *Client) Configured() bool {
	return c != nil && c.provider != nil
}

// AnalyzePortfolio 组合级分析
func (c *Client) AnalyzePortfolio(ctx context.Context, holdings []models.PortfolioHolding, profile *domain.Profile) (*domain.PortfolioAnalysis, error) {
	if len(holdings) == 0 {
		return nil, NewValidationError(CodeEmptyPortfolio, "portfolio is empty, add positions first")
	}

	logrus.Infof("调用分析模型：组合共 %d 个持仓", len(holdings))
	raw, err := c.complete(ctx, PortfolioSystemPrompt, BuildPortfolioPrompt(holdings, profile))
	if err != nil {
		return nil, err
	}
	result := NormalizePortfolio(raw)
	return &result, nil
}

// AnalyzeHolding 单个持仓分析
func (c *Client) AnalyzeHolding(ctx context.Context, holding *models.PortfolioHolding, profile *domain.Profile) (*domain.SingleAssetAnalysis, error) {
	raw, err := c.complete(ctx, SingleAssetSystemPrompt, BuildHoldingPrompt(holding, profile))
	if err != nil {
		return nil, err
	}
	result := NormalizeSingleAsset(raw)
	return &result, nil
}

// AnalyzeWatchlistItem 自选条目分析
func (c *Client) AnalyzeWatchlistItem(ctx context.Context, item *models.WatchlistItem, profile *domain.Profile) (*domain.SingleAssetAnalysis, error) {
	raw, err := c.complete(ctx, SingleAssetSystemPrompt, BuildWatchlistPrompt(item, profile))
	if err != nil {
		return nil, err
	}
	result := NormalizeSingleAsset(raw)
	return &result, nil
}

// AssignSectors 一次调用为全部持仓归类行业，返回 持仓ID → 行业。
// 键不是持仓ID或值不是非空字符串的条目被忽略。
func (c *Client) AssignSectors(ctx context.Context, holdings []models.PortfolioHolding) (map[uint]string, error) {
	if len(holdings) == 0 {
		return map[uint]string{}, nil
	}

	logrus.Infof("调用分析模型：为 %d 个持仓归类行业", len(holdings))
	raw, err := c.complete(llm.WithTemperature(ctx, SectorTemperature), SectorSystemPrompt, BuildSectorPrompt(holdings))
	if err != nil {
		return nil, err
	}

	sectors := make(map[uint]string, len(raw))
	for key, value := range raw {
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil {
			continue
		}
		sector, ok := value.(string)
		if !ok || strings.TrimSpace(sector) == "" {
			continue
		}
		sectors[uint(id)] = strings.TrimSpace(sector)
	}
	return sectors, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (map[string]any, error) {
	if !c.Configured() {
		return nil, NewConfigurationError("analysis provider is not configured, set OPENAI_API_KEY or GEMINI_API_KEY")
	}

	content, err := c.provider.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, NewConfigurationError(err.Error())
		}
		logrus.Errorf("分析模型调用失败 (%s): %v", c.provider.Name(), err)
		return nil, NewProviderExecutionError(err)
	}
	logrus.Debugf("分析模型响应 %d 字节", len(content))

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		parseErr := NewResponseParseError(content, err)
		logrus.Errorf("解析分析响应失败: %v, 响应片段: %s", err, parseErr.Snippet)
		return nil, parseErr
	}
	if raw == nil {
		return nil, NewResponseParseError(content, errors.New("response is not a JSON object"))
	}
	return raw, nil
}
