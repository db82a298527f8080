package rules

import (
	"os"
	"sync"
	"time"
)

// Loader serves the current catalogue and hot-reloads it when the
// file changes between scans, so scenario thresholds can be tuned
// without redeploying the engine.
type Loader struct {
	mu      sync.RWMutex
	path    string
	catalog *Catalog
	modTime time.Time
}

// NewLoader loads the catalogue once, failing fast on a bad file
func NewLoader(path string) (*Loader, error) {
	loader := &Loader{path: path}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// Current returns the latest valid catalogue, reloading if the file
// changed. A broken edit keeps the previous catalogue serving.
func (l *Loader) Current() (*Catalog, error) {
	stat, err := os.Stat(l.path)
	if err != nil {
		return l.snapshot(), nil
	}

	l.mu.RLock()
	fresh := !stat.ModTime().After(l.modTime)
	l.mu.RUnlock()
	if fresh {
		return l.snapshot(), nil
	}

	if err := l.reload(); err != nil {
		return l.snapshot(), err
	}
	return l.snapshot(), nil
}

func (l *Loader) snapshot() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog
}

func (l *Loader) reload() error {
	catalog, err := LoadCatalog(l.path)
	if err != nil {
		return err
	}

	stat, err := os.Stat(l.path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.catalog = catalog
	l.modTime = stat.ModTime()
	l.mu.Unlock()
	return nil
}
