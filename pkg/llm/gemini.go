package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"roboadvisor/pkg/config"
)

// GeminiProvider Google Gemini
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGeminiProvider 创建Gemini提供方
func NewGeminiProvider(ctx context.Context, cfg config.LLMConfig) (*GeminiProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.GeminiKey),
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiURL != "" {
		clientConfig.HTTPOptions.BaseURL = strings.TrimRight(cfg.GeminiURL, "/") + "/"
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		model:       cfg.GeminiModel,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini/" + p.model }

// Complete 以 application/json 输出生成内容
func (p *GeminiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	requestConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:      genai.Ptr(TemperatureFrom(ctx, p.temperature)),
		ResponseMIMEType: "application/json",
	}

	response, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(userPrompt), requestConfig)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	content := strings.TrimSpace(response.Text())
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
