package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileProvider serves the settings file and reloads it when it changes on disk.
type FileProvider struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	current Settings
}

func NewFileProvider(path string, logger *zap.Logger) (*FileProvider, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileProvider{path: path, logger: logger, current: s}, nil
}

func (p *FileProvider) Current() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Reload re-reads the file. On error the previous settings stay in effect.
func (p *FileProvider) Reload() error {
	s, err := Load(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	return nil
}

// Watch blocks until ctx is done, reloading on every write, create or rename
// of the settings file. The parent directory is watched so editors that
// replace the file are handled.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new settings watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := p.Reload(); err != nil {
				p.logger.Warn("settings reload failed", zap.String("path", p.path), zap.Error(err))
				continue
			}
			s := p.Current()
			p.logger.Info("settings reloaded",
				zap.Float64("shift_duration_hours", s.ShiftDurationHours),
				zap.Float64("hourly_rate", s.HourlyRate),
				zap.Bool("requires_hold_confirmation", s.RequiresHoldConfirmation))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("settings watcher error", zap.Error(err))
		}
	}
}
