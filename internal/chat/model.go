package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"anchorsync/internal/config"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrMissingAPIKey = errors.New("API key is missing")
)

// NewModel creates the chat model for the configured provider.
// Hosted providers need an API key; ollama runs locally without one.
func NewModel(ctx context.Context, cfg config.ChatConfig) (model.BaseChatModel, error) {
	if cfg.Provider != "ollama" && cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	switch cfg.Provider {
	case "openai", "":
		maxTokens := cfg.MaxTokens
		temperature := float32(cfg.Temperature)
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating openai chat model: %w", err)
		}
		return m, nil

	case "ollama":
		m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ollama chat model: %w", err)
		}
		return m, nil

	case "ark":
		m, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ark chat model: %w", err)
		}
		return m, nil

	case "deepseek":
		m, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating deepseek chat model: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
}
