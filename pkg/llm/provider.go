// Package llm 大模型调用封装。所有调用都要求模型返回 JSON 文本。
package llm

import (
	"context"
	"errors"
	"fmt"

	"roboadvisor/pkg/config"
)

// ErrNotConfigured 未配置API凭据
var ErrNotConfigured = errors.New("llm provider credential not configured")

// ErrEmptyResponse 模型返回空内容
var ErrEmptyResponse = errors.New("llm response content is empty")

// Provider 大模型提供方
type Provider interface {
	// Complete 以JSON模式完成一次对话，返回原始文本
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

type temperatureKey struct{}

// WithTemperature 为本次调用覆盖配置的采样温度
func WithTemperature(ctx context.Context, temperature float32) context.Context {
	return context.WithValue(ctx, temperatureKey{}, temperature)
}

// TemperatureFrom 读取本次调用的温度，未覆盖时返回 fallback
func TemperatureFrom(ctx context.Context, fallback float32) float32 {
	if t, ok := ctx.Value(temperatureKey{}).(float32); ok {
		return t
	}
	return fallback
}

// NewProvider 按配置创建提供方；缺少凭据时返回 ErrNotConfigured
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		if cfg.OpenAIKey == "" {
			return nil, ErrNotConfigured
		}
		return NewOpenAIProvider(cfg), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, ErrNotConfigured
		}
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}
}
