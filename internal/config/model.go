package config

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	anthropicmodel "github.com/zhouzirui/ai-advisor/backend/internal/provider/anthropic"
	openaimodel "github.com/zhouzirui/ai-advisor/backend/internal/provider/openai"
)

// NewChatModel 使用配置创建对应提供方的模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	switch c.Provider {
	case ProviderOpenAI:
		return openaimodel.NewChatModel(&openaimodel.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	case ProviderAnthropic:
		return anthropicmodel.NewChatModel(&anthropicmodel.Config{
			APIKey:      c.APIKey,
			Model:       c.Model,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q", c.Provider)
	}
}
