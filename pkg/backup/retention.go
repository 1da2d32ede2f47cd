package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Entry is one recorded backup directory.
type Entry struct {
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
}

// Manifest tracks the backup directories written so far, so retention can
// prune old ones without trusting directory listings or mtime. Saves are
// dirty-gated: reloading and immediately saving is a no-op.
type Manifest struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	dirty   bool
}

// LoadManifest reads the manifest at path, returning an empty one when the
// file does not exist yet.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{
		Path:    path,
		Entries: make(map[string]Entry),
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) Save() error {
	if !m.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o700); err != nil {
		return err
	}
	f, err := os.Create(m.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

// Record notes a freshly written backup directory.
func (m *Manifest) Record(dir string, at time.Time) {
	key := filepath.Base(dir)
	old, exists := m.Entries[key]
	if !exists || old.Dir != dir || !old.CreatedAt.Equal(at) {
		m.Entries[key] = Entry{Dir: dir, CreatedAt: at}
		m.dirty = true
	}
}

// Sweep removes entries older than cutoff from the manifest and deletes
// their directories, returning what was pruned. A directory that fails to
// delete stays in the manifest for the next sweep.
func (m *Manifest) Sweep(cutoff time.Time) []Entry {
	var swept []Entry
	for key, entry := range m.Entries {
		if !entry.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(entry.Dir); err != nil {
			continue
		}
		swept = append(swept, entry)
		delete(m.Entries, key)
		m.dirty = true
	}
	return swept
}
