// Package auth guards the debug API's state-changing routes with access keys
// read from a YAML file. The file is watched and reloaded when it changes.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Key is one named access key.
type Key struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

type keyFile struct {
	Keys []Key `yaml:"keys"`
}

// Service checks access keys.
type Service struct {
	mu      sync.RWMutex
	path    string
	keys    []Key
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewService loads the keys in path and watches it. An empty path or a
// missing file means open mode.
func NewService(path string) (*Service, error) {
	s := &Service{path: path, done: make(chan struct{})}
	if path == "" {
		close(s.done)
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("auth: could not create watcher", "err", err)
		close(s.done)
		return s, nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		slog.Warn("auth: could not watch key directory", "err", err)
	}
	s.watcher = watcher
	go s.watchLoop()
	return s, nil
}

// Reload re-reads the key file.
func (s *Service) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.set(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	var f keyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("auth: %s: %w", s.path, err)
	}
	for i, k := range f.Keys {
		if k.Key == "" {
			return fmt.Errorf("auth: %s: key %d (%q) is empty", s.path, i, k.Name)
		}
	}
	s.set(f.Keys)
	return nil
}

func (s *Service) set(keys []Key) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	slog.Debug("auth: keys loaded", "count", len(keys))
}

// IsOpenMode reports whether no keys are configured, in which case every
// request is allowed.
func (s *Service) IsOpenMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) == 0
}

// Verify returns the name of the key matching key. The comparison is
// constant-time.
func (s *Service) Verify(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k.Key)) == 1 {
			return k.Name, true
		}
	}
	return "", false
}

// Close stops the watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
	<-s.done
}

func (s *Service) watchLoop() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := s.Reload(); err != nil {
					slog.Warn("auth: failed to reload keys", "err", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("auth: watcher error", "err", err)
		}
	}
}
