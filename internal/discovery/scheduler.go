package discovery

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/conneroisu/reports/internal/watcher"
)

// watchDebounce groups bursts of editor writes into one rescan.
const watchDebounce = 500 * time.Millisecond

// Start performs an initial scan and then rescans on a fixed delay. When
// watching is enabled, changes under the external directories also trigger a
// rescan. Background work stops when ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return nil
	}

	if err := s.scan(ctx, TriggerManual); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.opts.ScanInterval > 0 {
		s.wg.Add(1)
		go s.schedule(runCtx)
	}

	if s.opts.Watch && s.opts.ExternalEnabled {
		if err := s.watch(runCtx); err != nil {
			s.logger.Warn(ctx, err, "file watching disabled")
		}
	}

	return nil
}

// Stop ends background scanning and waits for it to finish.
func (s *Service) Stop() {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Service) schedule(ctx context.Context) {
	defer s.wg.Done()

	// A timer reset after each run gives a fixed delay between scans.
	timer := time.NewTimer(s.opts.ScanInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.opts.ScanInterval)
		}
	}
}

// tick runs one scheduled scan. It reports whether a scan was attempted.
func (s *Service) tick(ctx context.Context) bool {
	if !s.opts.ExternalEnabled || s.opts.ScanInterval <= 0 {
		return false
	}

	s.logger.Debug(ctx, "scheduled reports scan triggered", "interval", s.opts.ScanInterval)
	if err := s.scan(ctx, TriggerSchedule); err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, err, "scheduled reports scan failed")
	}

	return true
}

func (s *Service) watch(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(watchDebounce, s.logger)
	if err != nil {
		return err
	}

	watched := 0
	for _, sub := range ExternalDirs {
		dir := filepath.Join(s.opts.ExternalPath, sub)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := fw.AddPath(dir); err != nil {
			s.logger.Warn(ctx, err, "cannot watch directory", "path", dir)
			continue
		}
		watched++
	}

	if watched == 0 {
		_ = fw.Stop()
		return nil
	}

	fw.AddFilter(watcher.ReportFilter)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		s.logger.Debug(ctx, "report files changed", "events", len(events))
		return s.scan(ctx, TriggerWatch)
	})

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		_ = fw.Stop()
	}()

	s.logger.Info(ctx, "watching external reports", "directories", watched)

	return nil
}
