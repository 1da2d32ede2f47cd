// Package dedupe removes fingerprint-identical duplicates from one side.
// Duplicates usually come from a previous sync tool or a double import;
// scrubbing them first keeps fingerprint matching unambiguous.
package dedupe

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/cookkie03/davsync/pkg/engine"
	"github.com/cookkie03/davsync/pkg/model"
)

// Report summarizes one scrub pass.
type Report struct {
	// Groups holds each set of fingerprint-identical records found, the
	// kept record first.
	Groups  [][]*model.Record
	Removed int
}

// Scrub finds groups of records sharing a fingerprint and removes all but
// one per group. Anchored records are preferred survivors, then the lowest
// remote identifier for determinism. In dry-run mode the report is built
// but nothing is removed.
func Scrub(ctx context.Context, ad engine.Adapter, dryRun bool) (*Report, error) {
	recs, err := ad.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", ad.Name(), err)
	}

	byFP := make(map[string][]*model.Record)
	for _, rec := range recs {
		if rec.Fingerprint == "" {
			continue
		}
		byFP[rec.Fingerprint] = append(byFP[rec.Fingerprint], rec)
	}

	fps := make([]string, 0, len(byFP))
	for fp, group := range byFP {
		if len(group) > 1 {
			fps = append(fps, fp)
		}
	}
	sort.Strings(fps)

	report := &Report{}
	for _, fp := range fps {
		group := byFP[fp]
		sort.Slice(group, func(i, j int) bool {
			if (group[i].SyncID != "") != (group[j].SyncID != "") {
				return group[i].SyncID != ""
			}
			return group[i].RemoteID < group[j].RemoteID
		})
		report.Groups = append(report.Groups, group)

		for _, dup := range group[1:] {
			if dryRun {
				log.Printf("[dedupe] %s: would remove %s (duplicate of %s)",
					ad.Name(), dup.RemoteID, group[0].RemoteID)
				report.Removed++
				continue
			}
			log.Printf("[dedupe] %s: removing %s (duplicate of %s)",
				ad.Name(), dup.RemoteID, group[0].RemoteID)
			if err := remove(ctx, ad, dup.RemoteID); err != nil {
				return report, err
			}
			report.Removed++
		}
	}
	return report, nil
}

// remove prefers soft-deletion when the side supports it.
func remove(ctx context.Context, ad engine.Adapter, remoteID string) error {
	if arch, ok := ad.(engine.Archiver); ok {
		return arch.Archive(ctx, remoteID)
	}
	return ad.Delete(ctx, remoteID)
}
