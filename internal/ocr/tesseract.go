package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
)

// TesseractConfig configures the tesseract text extractor.
type TesseractConfig struct {
	Bin         string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
	Timeout     time.Duration
}

// Tesseract extracts text from normalized images by piping them through the
// tesseract CLI twice: plain text, then TSV for word confidences.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bin == "" {
		cfg.Bin = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// tsvConfColumn is the index of "conf" in tesseract's TSV output.
const tsvConfColumn = 10

func (t *Tesseract) args(extra ...string) []string {
	// tesseract stdin stdout -l <lang> [...] [tsv]
	args := []string{"stdin", "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, extra...)
}

// Extract returns the recognized text and the mean word confidence in 0..1.
func (t *Tesseract) Extract(ctx context.Context, image []byte) (string, float64, error) {
	if len(image) == 0 {
		return "", 0, fmt.Errorf("tesseract: empty image")
	}
	ctx, cancel := common.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	out, errb, err := t.runner.Run(ctx, image, t.cfg.Bin, t.args()...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	text := CleanText(string(out))

	tsv, errb, err := t.runner.Run(ctx, image, t.cfg.Bin, t.args("tsv")...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract tsv: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	conf := meanConfidence(string(tsv))

	t.logger.Debug("ocr.extract.ok", "engine", "tesseract", "chars", len(text), "confidence", conf)
	return text, conf, nil
}

// meanConfidence averages word confidences (0..100) and scales to 0..1.
// Rows with conf -1 are layout rows, not words.
func meanConfidence(tsv string) float64 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		c := strings.TrimSpace(cols[tsvConfColumn])
		if c == "" || c == "-1" || strings.TrimSpace(cols[11]) == "" {
			continue
		}
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n / 100
}
