package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
)

const anthropicMaxTokens = 4096

type anthropicAPI struct {
	client anthropic.Client
	model  string
}

// NewAnthropic builds an Extractor on Anthropic's Messages API.
func NewAnthropic(cfg Config, logger *slog.Logger) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0))
	}
	api := &anthropicAPI{client: anthropic.NewClient(opts...), model: cfg.Model}
	return newExtractor(constants.EngineAnthropic, cfg, api, logger)
}

func (a *anthropicAPI) complete(ctx context.Context, image []byte, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}

func (a *anthropicAPI) close() error { return nil }
