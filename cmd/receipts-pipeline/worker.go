package main

import (
	"context"
	"errors"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/receipts-pipeline/internal/export"
	"github.com/joseph-ayodele/receipts-pipeline/internal/ocr"
	"github.com/joseph-ayodele/receipts-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/receipts-pipeline/internal/receipts"
	"github.com/joseph-ayodele/receipts-pipeline/internal/scheduler"
	"github.com/joseph-ayodele/receipts-pipeline/internal/server"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scheduler loop with the ops HTTP and gRPC health servers",
	Long: "Claims and processes pending jobs in both pipeline stages, snapshots the backlog and " +
		"refreshes suggestion rules on their schedules. --once runs a single tick and exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close(logger)
		if err := db.Ping(ctx, cfg.Database.DialTimeout, logger); err != nil {
			return err
		}

		runner := ocr.NewExecRunner(logger)
		ext, err := newExtractor(ctx, runner)
		if err != nil {
			return err
		}
		defer ext.Close()

		queue := newQueue()
		worker := pipeline.NewWorker(store, newNormalizer(runner), ext, logger,
			pipeline.WithBatchSize(cfg.Pipeline.BatchSize),
			pipeline.WithRetrier(queue),
		)
		mon := newMonitor(store)
		lc, err := loopConfig(cfg)
		if err != nil {
			return err
		}
		loop := scheduler.NewLoop(worker, mon, newRefresher(store), lc, logger)

		if workerOnce {
			_, res, err := loop.Tick(ctx, scheduler.State{})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}

		router := server.NewRouter(server.Deps{
			Health:   func(ctx context.Context) error { return db.Ping(ctx, 0, logger) },
			Backlog:  mon,
			Rules:    store,
			Export:   export.NewService(store, mon, logger),
			Receipts: receipts.NewService(store, queue, logger),
		}, logger)
		health := server.NewHealthServer(logger)

		httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.HTTPAddr, "error", err)
			return err
		}
		grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return server.Serve(gctx, httpLis, router, logger) })
		g.Go(func() error { return health.Serve(gctx, grpcLis) })
		g.Go(func() error {
			health.SetServing(true)
			defer health.SetServing(false)
			err := loop.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		err = g.Wait()
		logger.Info("worker stopped", "error", err)
		return err
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "run a single scheduler tick and exit")
	rootCmd.AddCommand(workerCmd)
}
