package main

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/async"
	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
	"github.com/joseph-ayodele/receipts-pipeline/internal/monitor"
	"github.com/joseph-ayodele/receipts-pipeline/internal/ocr"
	"github.com/joseph-ayodele/receipts-pipeline/internal/ocr/vision"
	"github.com/joseph-ayodele/receipts-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
	"github.com/joseph-ayodele/receipts-pipeline/internal/rules"
	"github.com/joseph-ayodele/receipts-pipeline/internal/scheduler"
)

func openStore(ctx context.Context) (*repository.DB, repository.Store, error) {
	db, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return nil, nil, err
	}
	return db, repository.NewStore(db, logger), nil
}

func newQueue() *async.Queue {
	return async.NewQueue(logger, async.WithRetryPolicy(async.RetryPolicy{
		MaxAttempts: cfg.Pipeline.RetryMaxAttempts,
		BaseDelay:   cfg.Pipeline.RetryBaseDelay,
	}))
}

func newNormalizer(runner ocr.Runner) *ocr.ImageNormalizer {
	return ocr.NewImageNormalizer(ocr.NormalizerConfig{
		MagickBin: cfg.OCR.MagickBin,
		Timeout:   cfg.OCR.Timeout,
	}, runner, logger)
}

// extractor is a pipeline.Extractor that may hold a client to release.
type extractor interface {
	pipeline.Extractor
	Close() error
}

type tesseractExtractor struct{ *ocr.Tesseract }

func (tesseractExtractor) Close() error { return nil }

func newExtractor(ctx context.Context, runner ocr.Runner) (extractor, error) {
	vcfg := vision.Config{
		RequestsPerMinute: cfg.Vision.RequestsPerMinute,
		Timeout:           cfg.Vision.Timeout,
	}
	switch cfg.OCR.Engine {
	case constants.EngineTesseract:
		return tesseractExtractor{ocr.NewTesseract(ocr.TesseractConfig{
			Bin:         cfg.OCR.TesseractBin,
			Lang:        cfg.OCR.TesseractLang,
			TessdataDir: cfg.OCR.TessdataDir,
			PSM:         6,
			OEM:         1,
			Timeout:     cfg.OCR.Timeout,
		}, runner, logger)}, nil
	case constants.EngineGemini:
		vcfg.APIKey, vcfg.Model = cfg.Vision.GeminiAPIKey, cfg.Vision.GeminiModel
		return vision.NewGemini(ctx, vcfg, logger)
	case constants.EngineAnthropic:
		vcfg.APIKey, vcfg.Model = cfg.Vision.AnthropicAPIKey, cfg.Vision.AnthropicModel
		return vision.NewAnthropic(vcfg, logger)
	}
	return nil, fmt.Errorf("unknown OCR engine %q", cfg.OCR.Engine)
}

func newMonitor(store repository.Store) *monitor.Monitor {
	var opts []monitor.Option
	if cfg.Backlog.SlackBotToken != "" && cfg.Backlog.SlackAlertChannel != "" {
		opts = append(opts, monitor.WithNotifier(
			monitor.NewSlackNotifier(cfg.Backlog.SlackBotToken, cfg.Backlog.SlackAlertChannel, "", logger)))
	}
	th := monitor.ThresholdsFromMinutes(
		cfg.Backlog.PendingReceiptMinutes,
		cfg.Backlog.PendingJobMinutes,
		cfg.Backlog.ProcessingJobMinutes,
	)
	return monitor.NewMonitor(store, th, logger, opts...)
}

func newRefresher(store repository.Store) *rules.Refresher {
	return rules.NewRefresher(store, cfg.Rules.MinOccurrences, logger)
}

func loopConfig(c *common.Config) (scheduler.Config, error) {
	lc := scheduler.Config{
		IdleDelay:        c.Pipeline.IdleDelay,
		SnapshotSchedule: scheduler.Every(c.Backlog.SnapshotInterval),
		RefreshSchedule:  scheduler.Every(c.Rules.RefreshInterval),
	}
	if c.Rules.RefreshCron != "" {
		sched, err := common.ParseCron(c.Rules.RefreshCron)
		if err != nil {
			return lc, fmt.Errorf("rules refresh cron: %w", err)
		}
		lc.RefreshSchedule = sched
	}
	return lc, nil
}
