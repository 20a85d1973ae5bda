// Package vision implements text extraction on hosted vision models.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
)

// Config is shared by the vision engines.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string // optional API endpoint override
	RequestsPerMinute int    // <= 0 means unlimited
	Timeout           time.Duration
}

// completer sends one image + prompt and returns the raw model text.
type completer interface {
	complete(ctx context.Context, image []byte, prompt string) (string, error)
	close() error
}

// Extractor turns normalized images into text via a vision model.
type Extractor struct {
	engine  string
	model   string
	api     completer
	limiter *rate.Limiter
	schema  *jsonschema.Schema
	timeout time.Duration
	logger  *slog.Logger
}

func newExtractor(engine string, cfg Config, api completer, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileSchema(transcriptionSchema())
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Extractor{
		engine:  engine,
		model:   cfg.Model,
		api:     api,
		limiter: rate.NewLimiter(limit, 1),
		schema:  schema,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Extract returns the transcription and the model's self-reported confidence,
// unclamped.
func (e *Extractor) Extract(ctx context.Context, image []byte) (string, float64, error) {
	if len(image) == 0 {
		return "", 0, fmt.Errorf("%s: empty image", e.engine)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("%s: rate limit: %w", e.engine, err)
	}
	ctx, cancel := common.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.api.complete(ctx, image, transcribePrompt)
	if err != nil {
		e.logger.Error("ocr.vision.request.failed", "engine", e.engine, "model", e.model, "err", err)
		return "", 0, fmt.Errorf("%s: %w", e.engine, err)
	}
	out, err := decodeTranscription(e.schema, raw)
	if err != nil {
		e.logger.Warn("ocr.vision.response.invalid", "engine", e.engine, "model", e.model, "err", err)
		return "", 0, fmt.Errorf("%s: %w", e.engine, err)
	}
	e.logger.Debug("ocr.extract.ok",
		"engine", e.engine,
		"model", e.model,
		"chars", len(out.Text),
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.Text, out.Confidence, nil
}

// Close releases the underlying client.
func (e *Extractor) Close() error {
	return e.api.close()
}
