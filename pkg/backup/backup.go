// Package backup writes point-in-time exports of both sides before a sync
// run mutates anything. Exports run concurrently under a hard deadline and
// fail independently: a hung Notion export must not lose the DAV one.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cookkie03/davsync/pkg/dav"
	"github.com/cookkie03/davsync/pkg/engine"
)

// DefaultTimeout bounds one whole backup pass.
const DefaultTimeout = 2 * time.Minute

// Exporter writes one side's snapshot into dir.
type Exporter interface {
	Name() string
	Export(ctx context.Context, dir string) error
}

// Result is the outcome of one exporter.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Run executes all exporters concurrently into a timestamped subdirectory
// of baseDir and returns one result per exporter, in order. The returned
// directory is empty when nothing could be created.
func Run(ctx context.Context, baseDir string, timeout time.Duration, exporters ...Exporter) (string, []Result) {
	results := make([]Result, len(exporters))
	for i, exp := range exporters {
		results[i].Name = exp.Name()
	}

	dir := filepath.Join(baseDir, time.Now().UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		for i := range results {
			results[i].Err = fmt.Errorf("creating backup dir: %w", err)
		}
		return "", results
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i, exp := range exporters {
		i, exp := i, exp
		g.Go(func() error {
			sub := filepath.Join(dir, exp.Name())
			if err := os.MkdirAll(sub, 0o700); err != nil {
				results[i].Err = err
				return nil
			}
			start := time.Now()
			results[i].Err = exp.Export(ctx, sub)
			results[i].Duration = time.Since(start)
			return nil
		})
	}
	g.Wait()
	return dir, results
}

// DAVExporter dumps every raw resource of a WebDAV collection, preserving
// the server's wire bytes so a restore is a plain series of PUTs.
type DAVExporter struct {
	Client *dav.Client
	Label  string
}

func (e *DAVExporter) Name() string { return e.Label }

func (e *DAVExporter) Export(ctx context.Context, dir string) error {
	resources, err := e.Client.List(ctx)
	if err != nil {
		return fmt.Errorf("listing collection: %w", err)
	}
	for _, res := range resources {
		body, _, err := e.Client.Get(ctx, res.Href)
		if err != nil {
			return err
		}
		name := path.Base(res.Href)
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// RecordExporter dumps an adapter's records as indented JSON. Used for the
// hosted sides, whose native export formats are not self-hosted anyway.
type RecordExporter struct {
	Adapter engine.Adapter
}

func (e *RecordExporter) Name() string { return e.Adapter.Name() }

func (e *RecordExporter) Export(ctx context.Context, dir string) error {
	recs, err := e.Adapter.ListAll(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	out := filepath.Join(dir, "records.json")
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}
