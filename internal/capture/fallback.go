package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hivetrap/internal/model"
)

// Fallback appends one JSON object per line to a per-service file. It is the
// crash-safe path taken when the capture store is unreachable.
type Fallback struct {
	dir string
	mu  sync.Mutex
}

func NewFallback(dir string) *Fallback {
	if dir == "" {
		dir = "."
	}
	return &Fallback{dir: dir}
}

func (f *Fallback) Write(service model.Service, rec model.CaptureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s_attacks.json", service))
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()
	if _, err := fh.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
