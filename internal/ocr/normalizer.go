package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
)

// NormalizerConfig configures the ImageMagick normalizer.
type NormalizerConfig struct {
	MagickBin string        // binary name or absolute path; if empty -> "magick"
	Timeout   time.Duration // per call; 0 = only the caller's deadline
}

// ImageNormalizer turns raw receipt bytes into a grayscale, deskewed,
// contrast-stretched PNG suitable for OCR.
type ImageNormalizer struct {
	cfg    NormalizerConfig
	runner Runner
	logger *slog.Logger
}

func NewImageNormalizer(cfg NormalizerConfig, runner Runner, logger *slog.Logger) *ImageNormalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MagickBin == "" {
		cfg.MagickBin = "magick"
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &ImageNormalizer{cfg: cfg, runner: runner, logger: logger}
}

// magickArgs reads from stdin and writes PNG to stdout.
func magickArgs() []string {
	return []string{
		"-",
		"-auto-orient",
		"-deskew", "40%",
		"-colorspace", "Gray",
		"-contrast-stretch", "0.1%x0.9%",
		"-sharpen", "0x1",
		"png:-",
	}
}

// Normalize returns the normalized image. Empty input is returned unchanged.
func (n *ImageNormalizer) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	ctx, cancel := common.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	input, err := n.prepare(data)
	if err != nil {
		return nil, err
	}

	out, errb, err := n.runner.Run(ctx, input, n.cfg.MagickBin, magickArgs()...)
	if err != nil {
		msg := strings.TrimSpace(truncate(string(errb), 512))
		if msg != "" {
			return nil, fmt.Errorf("magick: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("magick: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("magick produced no output")
	}
	n.logger.Debug("ocr.normalize.ok", "in_bytes", len(data), "out_bytes", len(out))
	return out, nil
}

// prepare converts containers ImageMagick may lack delegates for into PNG.
func (n *ImageNormalizer) prepare(data []byte) ([]byte, error) {
	switch f := Sniff(data); f {
	case FormatPDF:
		n.logger.Debug("ocr.normalize.rasterize_pdf", "bytes", len(data))
		return rasterizePDF(data)
	case FormatHEIC:
		n.logger.Debug("ocr.normalize.decode_heic", "bytes", len(data))
		return decodeHEIC(data)
	default:
		return data, nil
	}
}
