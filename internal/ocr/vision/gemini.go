package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
)

type geminiAPI struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini builds an Extractor on Google Gemini.
func NewGemini(ctx context.Context, cfg Config, logger *slog.Logger) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(0)

	return newExtractor(constants.EngineGemini, cfg, &geminiAPI{client: client, model: model}, logger)
}

func (g *geminiAPI) complete(ctx context.Context, image []byte, prompt string) (string, error) {
	// genai.ImageData wants the format suffix, not the MIME type; normalized images are PNG
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", image), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func (g *geminiAPI) close() error {
	return g.client.Close()
}
