package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/cookkie03/davsync/pkg/model"
)

// matchPhase pairs unlinked records across sides by content fingerprint so
// that pre-existing duplicates are adopted instead of re-created. Paired
// records get the identifier anchored into whichever side lacks it and a
// link row written; the returned loose pools exclude everything matched.
func (e *Engine) matchPhase(ctx context.Context, st *Stats, links map[string]*model.Link,
	aByID, bByID map[string]*model.Record, aLoose, bLoose []*model.Record) ([]*model.Record, []*model.Record) {

	fpA := fingerprintPool(unlinkedPool(links, aByID, bByID, aLoose))
	fpB := fingerprintPool(unlinkedPool(links, bByID, aByID, bLoose))
	if len(fpA) == 0 || len(fpB) == 0 {
		return aLoose, bLoose
	}

	fps := make([]string, 0, len(fpA))
	for fp := range fpA {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	matchedA := make(map[*model.Record]bool)
	matchedB := make(map[*model.Record]bool)
	for _, fp := range fps {
		b, ok := fpB[fp]
		if !ok {
			continue
		}
		a := fpA[fp]
		if err := e.matchPair(ctx, st, links, aByID, bByID, a, b); err != nil {
			st.Errors++
			e.logf("[match] %q: %v", fp, err)
			continue
		}
		matchedA[a] = true
		matchedB[b] = true
	}

	return pruneLoose(aLoose, matchedA), pruneLoose(bLoose, matchedB)
}

// matchPair adopts one fingerprint-matched pair: the identifier comes from
// whichever record already has one (minted fresh if neither does) and is
// anchored onto the side(s) missing it.
func (e *Engine) matchPair(ctx context.Context, st *Stats, links map[string]*model.Link,
	aByID, bByID map[string]*model.Record, a, b *model.Record) error {

	id := a.SyncID
	if id == "" {
		id = b.SyncID
	}
	if id == "" {
		id = e.NewID()
	}
	e.logf("[match] %s: paired %s %s with %s %s", id, e.A.Name(), a.RemoteID, e.B.Name(), b.RemoteID)
	st.Matched++

	if e.DryRun {
		e.logf("[dry-run] would anchor pair as %s", id)
		return nil
	}

	if a.SyncID != id {
		if a.SyncID != "" {
			delete(aByID, a.SyncID)
		}
		if err := e.anchor(ctx, model.SideA, a, id); err != nil {
			return err
		}
	}
	if b.SyncID != id {
		if b.SyncID != "" {
			delete(bByID, b.SyncID)
		}
		if err := e.anchor(ctx, model.SideB, b, id); err != nil {
			return err
		}
	}
	aByID[id] = a
	bByID[id] = b

	l := &model.Link{
		SyncID:      id,
		AID:         a.RemoteID,
		BID:         b.RemoteID,
		ATok:        a.Token,
		BTok:        b.Token,
		Fingerprint: a.Fingerprint,
	}
	links[id] = l
	return e.Store.Upsert(ctx, l)
}

func (e *Engine) anchor(ctx context.Context, side model.Side, rec *model.Record, id string) error {
	err := e.retryFor(side).Do(ctx, fmt.Sprintf("anchor %s %s", side, id), func() error {
		tok, err := e.adapterFor(side).Anchor(ctx, rec, id)
		if err != nil {
			return err
		}
		rec.Token = tok
		return nil
	})
	if err != nil {
		return err
	}
	rec.SyncID = id
	return nil
}

// unlinkedPool collects the records eligible for matching: everything with
// no identifier plus identified records that have neither a link nor a
// same-identifier counterpart (those pairs are adopted during
// reconciliation instead).
func unlinkedPool(links map[string]*model.Link, own, other map[string]*model.Record, loose []*model.Record) []*model.Record {
	pool := make([]*model.Record, 0, len(loose))
	pool = append(pool, loose...)
	for id, rec := range own {
		if links[id] == nil && other[id] == nil {
			pool = append(pool, rec)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].RemoteID < pool[j].RemoteID })
	return pool
}

// fingerprintPool keys records by fingerprint, first seen wins. Records
// with an empty fingerprint carry no usable identity and never match.
func fingerprintPool(pool []*model.Record) map[string]*model.Record {
	byFP := make(map[string]*model.Record, len(pool))
	for _, rec := range pool {
		if rec.Fingerprint == "" {
			continue
		}
		if _, dup := byFP[rec.Fingerprint]; !dup {
			byFP[rec.Fingerprint] = rec
		}
	}
	return byFP
}

func pruneLoose(loose []*model.Record, matched map[*model.Record]bool) []*model.Record {
	if len(matched) == 0 {
		return loose
	}
	out := loose[:0]
	for _, rec := range loose {
		if !matched[rec] {
			out = append(out, rec)
		}
	}
	return out
}
