// Package publish remembers which rendered documents were published, so a
// client can offer to republish instead of publishing a new copy.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Entry struct {
	OutputFile  string    `yaml:"output_file" json:"output_file"`
	ID          string    `yaml:"id" json:"id"`
	PublishedAt time.Time `yaml:"published_at" json:"published_at"`
}

type registryFile struct {
	Version int     `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// Registry is a YAML file backed map of output file -> publication id.
// A Registry with an empty path lives only in memory.
type Registry struct {
	path string

	mx      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// Open loads the registry stored at path; a missing file is an empty registry.
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:    path,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	if path == "" {
		return r, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading publish registry: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parsing publish registry %s: %w", path, err)
	}
	for _, e := range file.Entries {
		if e.OutputFile == "" || e.ID == "" {
			continue
		}
		r.entries[filepath.Clean(e.OutputFile)] = e
	}
	return r, nil
}

// Published is true if outputFile has a publication id.
func (r *Registry) Published(outputFile string) bool {
	_, ok := r.ID(outputFile)
	return ok
}

func (r *Registry) ID(outputFile string) (string, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	e, ok := r.entries[filepath.Clean(outputFile)]
	return e.ID, ok
}

func (r *Registry) Entries() []Entry {
	r.mx.RLock()
	defer r.mx.RUnlock()
	ret := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		ret = append(ret, e)
	}
	slices.SortFunc(ret, func(a, b Entry) int { return strings.Compare(a.OutputFile, b.OutputFile) })
	return ret
}

// Record stores the publication id of outputFile, replacing an older one.
func (r *Registry) Record(ctx context.Context, outputFile, id string) error {
	if !filepath.IsAbs(outputFile) {
		return fmt.Errorf("output file %q: path is not absolute", outputFile)
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("empty publication id")
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	outputFile = filepath.Clean(outputFile)
	r.entries[outputFile] = Entry{
		OutputFile:  outputFile,
		ID:          id,
		PublishedAt: r.now().UTC(),
	}
	slog.DebugContext(ctx, "publication recorded", "output_file", outputFile, "id", id)
	return r.save()
}

// Prune drops entries of output files which no longer exist and returns how
// many were dropped.
func (r *Registry) Prune(ctx context.Context) (int, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	var pruned int
	for path := range r.entries {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			delete(r.entries, path)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	slog.InfoContext(ctx, "publish registry pruned", "removed", pruned, "kept", len(r.entries))
	return pruned, r.save()
}

// save writes the registry to a temporary file renamed over the old one.
// The caller holds the write lock.
func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	file := registryFile{Version: 0, Entries: make([]Entry, 0, len(r.entries))}
	for _, e := range r.entries {
		file.Entries = append(file.Entries, e)
	}
	slices.SortFunc(file.Entries, func(a, b Entry) int { return strings.Compare(a.OutputFile, b.OutputFile) })

	b, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating publish registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".published-*.yaml")
	if err != nil {
		return fmt.Errorf("saving publish registry: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("saving publish registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving publish registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("saving publish registry: %w", err)
	}
	return nil
}
