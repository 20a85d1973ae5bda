package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // emit files already present
	Debounce    time.Duration // coalesce rapid write/rename bursts
}

// StartWatcher emits paths of allowed files created or rewritten under the
// roots. Both channels close when ctx is done.
func (i *Ingestor) StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		i.logger.Error("ingest.watch.init.failed", "err", err)
		return nil, nil, err
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	var initial []string
	for _, r := range cfg.Roots {
		err := filepath.WalkDir(r, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && i.allowed(path) {
				initial = append(initial, path)
			}
			return nil
		})
		if err != nil {
			i.logger.Error("ingest.watch.add.failed", "root", r, "err", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		var (
			mu      sync.Mutex
			timer   *time.Timer
			pending = map[string]struct{}{}
			done    = make(chan struct{})
		)
		var wg sync.WaitGroup
		defer func() {
			close(done)
			mu.Lock()
			if timer != nil && timer.Stop() {
				wg.Done()
			}
			mu.Unlock()
			wg.Wait()
			close(evCh)
			close(errCh)
			if err := w.Close(); err != nil {
				i.logger.Warn("ingest.watch.close.failed", "err", err)
			}
		}()

		emit := func(p string) {
			select {
			case evCh <- p:
			case <-done:
			}
		}
		flush := func() {
			defer wg.Done()
			mu.Lock()
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
				delete(pending, p)
			}
			timer = nil
			mu.Unlock()
			for _, p := range paths {
				emit(p)
			}
		}

		for _, p := range initial {
			emit(p)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create != 0 {
					// new directories are watched too; files fail Add harmlessly
					_ = w.Add(e.Name)
				}
				if !i.allowed(e.Name) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if cfg.Debounce <= 0 {
					emit(e.Name)
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				if timer != nil && timer.Stop() {
					wg.Done()
				}
				wg.Add(1)
				timer = time.AfterFunc(cfg.Debounce, flush)
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				i.logger.Warn("ingest.watch.event.failed", "err", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// Watch uploads files as they appear until ctx is done.
func (i *Ingestor) Watch(ctx context.Context, cfg WatchConfig) error {
	events, errs, err := i.StartWatcher(ctx, cfg)
	if err != nil {
		return err
	}
	i.logger.Info("ingest.watch.started", "roots", cfg.Roots)
	for {
		select {
		case p, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			// failures are logged by IngestPath
			_, _ = i.IngestPath(ctx, p)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			i.logger.Debug("ingest.watch.error", "err", err)
		}
	}
}
