package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"mcpgateway/internal/api"
	"mcpgateway/pkg/logging"
)

// DefaultDebounce is how long the watcher waits for a file to settle.
const DefaultDebounce = 250 * time.Millisecond

// Registrar is the part of the aggregator the loader needs.
type Registrar interface {
	Register(ctx context.Context, req api.RegisterServerRequest) (*api.ServerRecord, error)
}

// Result describes the outcome of loading one file.
type Result struct {
	Path     string
	Name     string
	ServerID string
	Skipped  bool
	Err      error
}

// DirectoryLoader registers server definitions found in a directory.
type DirectoryLoader struct {
	dir       string
	registrar Registrar
	debounce  time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]*time.Timer
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// NewDirectoryLoader creates a loader for dir. A zero debounce uses
// DefaultDebounce.
func NewDirectoryLoader(dir string, registrar Registrar, debounce time.Duration) *DirectoryLoader {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &DirectoryLoader{
		dir:       dir,
		registrar: registrar,
		debounce:  debounce,
		pending:   make(map[string]*time.Timer),
	}
}

// LoadAll registers every definition in the directory in file name order.
// A missing directory yields no results. Per-file failures are reported in
// the results and logged; they do not stop the remaining files.
func (l *DirectoryLoader) LoadAll(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ServerLoader", "Servers directory %s does not exist", l.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read servers directory %s: %w", l.dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isYAMLFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(l.dir, e.Name()))
	}
	sort.Strings(paths)

	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		results = append(results, l.LoadFile(ctx, p))
	}
	return results, nil
}

// LoadFile parses and registers a single definition.
func (l *DirectoryLoader) LoadFile(ctx context.Context, path string) Result {
	res := Result{Path: path}

	req, err := ParseFile(path)
	if err != nil {
		res.Err = err
		logging.Error("ServerLoader", err, "Invalid server definition %s", path)
		return res
	}
	res.Name = req.Name

	rec, err := l.registrar.Register(ctx, req)
	switch {
	case api.IsCode(err, api.CodeServerAlreadyExists):
		res.Skipped = true
		logging.Debug("ServerLoader", "Server %s from %s is already registered", req.Name, path)
	case err != nil:
		res.Err = err
		logging.Error("ServerLoader", err, "Failed to register server %s from %s", req.Name, path)
	default:
		res.ServerID = rec.ID
		logging.Info("ServerLoader", "Registered server %s (%s) from %s", rec.Name, rec.ID, path)
	}
	return res
}

// ParseFile reads a definition. Unknown fields are rejected.
func ParseFile(path string) (api.RegisterServerRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.RegisterServerRequest{}, err
	}
	return parse(data, fileStem(path))
}

func parse(data []byte, defaultName string) (api.RegisterServerRequest, error) {
	var req api.RegisterServerRequest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, fmt.Errorf("empty server definition")
		}
		return req, fmt.Errorf("failed to parse server definition: %w", err)
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = defaultName
	}
	return req, nil
}

// Watch starts watching the directory, creating it if needed. Definitions
// that appear or change are registered after the debounce interval.
func (l *DirectoryLoader) Watch(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create servers directory %s: %w", l.dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	l.watcher = watcher
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	l.running = true

	go l.processEvents(ctx, watcher, l.stopCh, l.done)

	logging.Info("ServerLoader", "Watching %s for server definitions", l.dir)
	return nil
}

func (l *DirectoryLoader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stopCh, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ServerLoader", err, "Filesystem watcher error")
		}
	}
}

func (l *DirectoryLoader) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isYAMLFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			logging.Debug("ServerLoader", "Definition %s removed; registered server is kept", event.Name)
		}
		return
	}

	path := event.Name
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	if t, ok := l.pending[path]; ok {
		t.Stop()
	}
	l.pending[path] = time.AfterFunc(l.debounce, func() {
		l.mu.Lock()
		delete(l.pending, path)
		running := l.running
		l.mu.Unlock()
		if running && ctx.Err() == nil {
			l.LoadFile(ctx, path)
		}
	})
}

// Stop stops watching. Pending debounced loads are cancelled.
func (l *DirectoryLoader) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	for path, t := range l.pending {
		t.Stop()
		delete(l.pending, path)
	}
	close(l.stopCh)
	watcher, done := l.watcher, l.done
	l.watcher = nil
	l.mu.Unlock()

	err := watcher.Close()
	<-done
	return err
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
