// Package engine implements the reconciliation core: given full snapshots
// of both sides and the persisted link table, it classifies every
// synchronization identifier into a transition case and performs the
// minimal set of writes that converges both sides.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cookkie03/davsync/pkg/model"
	"github.com/cookkie03/davsync/pkg/retry"
	"github.com/cookkie03/davsync/pkg/store"
)

// NotifyErrorFrac is the run error rate above which a notification fires.
const NotifyErrorFrac = 0.20

// Engine reconciles one pair of record stores. It is single-threaded: one
// run owns the in-memory pools, both breakers, and the store.
type Engine struct {
	A, B  Adapter
	Store *store.Store

	// RetryA guards writes to side A, RetryB to side B. Separate breakers
	// keep a degraded side from suppressing writes to the healthy one.
	RetryA *retry.Doer
	RetryB *retry.Doer

	// Authority is the side whose state wins when both changed.
	Authority model.Side
	Guard     Guard
	Hooks     *Hooks
	Notifier  Notifier

	// DryRun logs every intended write instead of executing it, while
	// still running the full classification.
	DryRun bool

	// NewID mints fresh synchronization identifiers.
	NewID func() string

	Logf func(format string, args ...any)
}

// New returns an engine with the default retry, guard, and id policies.
func New(a, b Adapter, st *store.Store) *Engine {
	return &Engine{
		A:      a,
		B:      b,
		Store:  st,
		RetryA: retry.NewDoer(),
		RetryB: retry.NewDoer(),
		Guard:  DefaultGuard,
		NewID:  uuid.NewString,
		Logf:   log.Printf,
	}
}

func (e *Engine) adapterFor(s model.Side) Adapter {
	if s == model.SideA {
		return e.A
	}
	return e.B
}

func (e *Engine) retryFor(s model.Side) *retry.Doer {
	if s == model.SideA {
		return e.RetryA
	}
	return e.RetryB
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

func (e *Engine) notify(title, msg string) {
	if e.Notifier != nil {
		e.Notifier.Notify(title, msg)
	}
}

// fatal notifies about an error that aborts the run before reconciliation
// even starts. Unattended runs have no other way to surface it.
func (e *Engine) fatal(err error) error {
	e.notify("sync failed", err.Error())
	return err
}

func (e *Engine) shouldSkip(rec *model.Record) bool {
	return e.Hooks != nil && e.Hooks.ShouldSkip != nil && e.Hooks.ShouldSkip(rec)
}

// Run performs one full reconciliation pass: fetch both sides, check the
// safety guard, match unlinked records by fingerprint, then classify and
// converge every identifier. Individual record failures are counted and
// the run continues; only fetch failures, the safety guard, and
// cancellation abort it.
func (e *Engine) Run(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	aRecs, err := e.A.ListAll(ctx)
	if err != nil {
		return st, e.fatal(fmt.Errorf("listing side a (%s): %w", e.A.Name(), err))
	}
	bRecs, err := e.B.ListAll(ctx)
	if err != nil {
		return st, e.fatal(fmt.Errorf("listing side b (%s): %w", e.B.Name(), err))
	}
	stored, err := e.Store.Load(ctx)
	if err != nil {
		return st, e.fatal(fmt.Errorf("loading link state: %w", err))
	}

	links := make(map[string]*model.Link, len(stored))
	for _, l := range stored {
		links[l.SyncID] = l
	}
	aByID, aLoose := e.indexRecords(aRecs)
	bByID, bLoose := e.indexRecords(bRecs)
	e.logf("[run] a=%s: %d records (%d unanchored), b=%s: %d records (%d unanchored), links=%d",
		e.A.Name(), len(aRecs), len(aLoose), e.B.Name(), len(bRecs), len(bLoose), len(links))

	if err := e.Guard.Check(links, aByID, bByID); err != nil {
		e.logf("[guard] %v", err)
		e.notify("sync aborted", err.Error())
		return st, err
	}

	aLoose, bLoose = e.matchPhase(ctx, st, links, aByID, bByID, aLoose, bLoose)

	// Matching-phase write errors must not eat into the reconciliation
	// error budget; the sweeps are independent pipelines.
	e.RetryA.Breaker.Reset()
	e.RetryB.Breaker.Reset()

	seen := make(map[string]bool, len(links)+len(aByID)+len(bByID))
	for id := range links {
		seen[id] = true
	}
	for id := range aByID {
		seen[id] = true
	}
	for id := range bByID {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if err := e.reconcileOne(ctx, st, id, links[id], aByID[id], bByID[id]); err != nil {
			st.Errors++
			e.logf("[run] %s: %v", id, err)
		}
	}

	// Records that survived matching with no identifier at all: mint one,
	// anchor it, and create the counterpart.
	for _, rec := range aLoose {
		if err := e.createFromLoose(ctx, st, rec, model.SideA); err != nil {
			st.Errors++
			e.logf("[run] unanchored a record %s: %v", rec.RemoteID, err)
		}
	}
	for _, rec := range bLoose {
		if err := e.createFromLoose(ctx, st, rec, model.SideB); err != nil {
			st.Errors++
			e.logf("[run] unanchored b record %s: %v", rec.RemoteID, err)
		}
	}

	e.logf("[run] complete: %s", st)

	switch {
	case e.RetryA.Breaker.Tripped() || e.RetryB.Breaker.Tripped():
		e.notify("sync circuit breaker tripped",
			fmt.Sprintf("Too many consecutive write failures; remaining writes were skipped.\n%s", st))
	case st.Errors > 0 && st.ErrorRate() > NotifyErrorFrac:
		e.notify("sync errors",
			fmt.Sprintf("Run finished with %d errors out of %d records.\n%s", st.Errors, st.Total(), st))
	}
	return st, nil
}

// indexRecords splits records into an id-keyed map and the pool of records
// without a sync identifier. A duplicated identifier on one side keeps the
// first record (sorted by remote id) and logs the rest.
func (e *Engine) indexRecords(recs []*model.Record) (map[string]*model.Record, []*model.Record) {
	sorted := make([]*model.Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RemoteID < sorted[j].RemoteID })

	byID := make(map[string]*model.Record)
	var loose []*model.Record
	for _, r := range sorted {
		if r.SyncID == "" {
			loose = append(loose, r)
			continue
		}
		if _, dup := byID[r.SyncID]; dup {
			e.logf("[run] duplicate sync id %s at %s, keeping first", r.SyncID, r.RemoteID)
			continue
		}
		byID[r.SyncID] = r
	}
	return byID, loose
}

// reconcileOne applies the transition table for a single identifier.
// s = prior link (or nil), a/b = current records (or nil).
func (e *Engine) reconcileOne(ctx context.Context, st *Stats, id string, s *model.Link, a, b *model.Record) error {
	// Archived links are terminal: the pair completed and its counterpart
	// was soft-deleted. The row only blocks re-creation until both
	// records are confirmed gone.
	if s != nil && s.Archived {
		if a == nil && b == nil {
			return e.dropLink(ctx, st, s, "both sides gone (archived)")
		}
		st.Skipped++
		return nil
	}

	switch {
	case s != nil && a == nil && b == nil:
		return e.dropLink(ctx, st, s, "both sides gone")

	case s != nil && a == nil && b != nil:
		return e.deleteCounterpart(ctx, st, s, b, model.SideB)

	case s != nil && a != nil && b == nil:
		return e.deleteCounterpart(ctx, st, s, a, model.SideA)

	case s == nil && a != nil && b == nil:
		return e.createCounterpart(ctx, st, a, model.SideA)

	case s == nil && a == nil && b != nil:
		return e.createCounterpart(ctx, st, b, model.SideB)

	case s == nil && a != nil && b != nil:
		// Both sides already carry the identifier: adopt the pair
		// without writing either side.
		e.logf("[adopt] %s: linking existing pair", id)
		st.Adopted++
		if e.DryRun {
			return nil
		}
		return e.Store.Upsert(ctx, &model.Link{
			SyncID:      id,
			AID:         a.RemoteID,
			BID:         b.RemoteID,
			ATok:        a.Token,
			BTok:        b.Token,
			Fingerprint: a.Fingerprint,
		})

	default:
		return e.reconcilePair(ctx, st, s, a, b)
	}
}

func (e *Engine) dropLink(ctx context.Context, st *Stats, s *model.Link, why string) error {
	e.logf("[drop] %s: %s", s.SyncID, why)
	st.Deleted++
	if e.DryRun {
		return nil
	}
	return e.Store.Delete(ctx, s.SyncID)
}

// deleteCounterpart handles "gone from one side": the surviving record on
// side is deleted and the link dropped.
func (e *Engine) deleteCounterpart(ctx context.Context, st *Stats, s *model.Link, rec *model.Record, side model.Side) error {
	if e.DryRun {
		e.logf("[dry-run] delete %s record %s (gone from %s)", side, rec.RemoteID, side.Other())
		st.Deleted++
		return nil
	}
	e.logf("[delete] %s: removing from %s (gone from %s)", s.SyncID, side, side.Other())
	err := e.retryFor(side).Do(ctx, fmt.Sprintf("delete %s %s", side, s.SyncID), func() error {
		return e.adapterFor(side).Delete(ctx, rec.RemoteID)
	})
	if err != nil {
		return err
	}
	st.Deleted++
	return e.Store.Delete(ctx, s.SyncID)
}

// createCounterpart handles "new on one side": the record is copied to the
// other side and a link established.
func (e *Engine) createCounterpart(ctx context.Context, st *Stats, rec *model.Record, side model.Side) error {
	if e.shouldSkip(rec) {
		e.logf("[skip] %s: %s record filtered by policy (completed one-shot)", rec.SyncID, side)
		st.Skipped++
		return nil
	}
	other := side.Other()
	if e.DryRun {
		e.logf("[dry-run] create on %s from %s: %s", other, side, rec.SyncID)
		e.countCreate(st, other)
		return nil
	}
	e.logf("[create] %s: %s ← %s", rec.SyncID, other, side)

	var remoteID, token string
	err := e.retryFor(other).Do(ctx, fmt.Sprintf("create %s %s", other, rec.SyncID), func() error {
		rid, tok, err := e.adapterFor(other).Create(ctx, rec)
		if err != nil {
			return err
		}
		remoteID, token = rid, tok
		return nil
	})
	if err != nil {
		return err
	}
	e.countCreate(st, other)

	l := &model.Link{SyncID: rec.SyncID, Fingerprint: rec.Fingerprint}
	if side == model.SideA {
		l.AID, l.ATok = rec.RemoteID, rec.Token
		l.BID, l.BTok = remoteID, token
	} else {
		l.BID, l.BTok = rec.RemoteID, rec.Token
		l.AID, l.ATok = remoteID, token
	}
	return e.Store.Upsert(ctx, l)
}

func (e *Engine) countCreate(st *Stats, side model.Side) {
	if side == model.SideA {
		st.CreatedA++
	} else {
		st.CreatedB++
	}
}

// createFromLoose handles records that have no identifier anywhere: mint a
// fresh one, anchor it on the record's own side, then create the
// counterpart.
func (e *Engine) createFromLoose(ctx context.Context, st *Stats, rec *model.Record, side model.Side) error {
	if e.shouldSkip(rec) {
		st.Skipped++
		return nil
	}
	id := e.NewID()
	if e.DryRun {
		e.logf("[dry-run] anchor %s record %s as %s and create on %s", side, rec.RemoteID, id, side.Other())
		e.countCreate(st, side.Other())
		return nil
	}
	e.logf("[create] anchoring unanchored %s record %s as %s", side, rec.RemoteID, id)

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
	return e.createCounterpart(ctx, st, rec, side)
}

// reconcilePair is the update case: link and both records present.
func (e *Engine) reconcilePair(ctx context.Context, st *Stats, s *model.Link, a, b *model.Record) error {
	aChanged := a.Token != s.ATok
	bChanged := b.Token != s.BTok

	if !aChanged && !bChanged {
		st.Skipped++
		return nil
	}

	var src, dst *model.Record
	var dstSide model.Side
	switch {
	case aChanged && bChanged:
		st.Conflicts++
		if e.Authority == model.SideA {
			src, dst, dstSide = a, b, model.SideB
		} else {
			src, dst, dstSide = b, a, model.SideA
		}
		e.logf("[conflict] %s: both sides changed since last sync, side %s wins", s.SyncID, e.Authority)
	case aChanged:
		src, dst, dstSide = a, b, model.SideB
	default:
		src, dst, dstSide = b, a, model.SideA
	}

	if e.Hooks != nil && src.Done {
		if src.Recurring() {
			return e.advanceRecurring(ctx, st, s, src, dst, dstSide)
		}
		return e.archiveCompleted(ctx, st, s, src, dst, dstSide)
	}
	return e.propagate(ctx, st, s, src, dst, dstSide)
}

// propagate copies src's content over dst, guarded by dst's current token.
func (e *Engine) propagate(ctx context.Context, st *Stats, s *model.Link, src, dst *model.Record, dstSide model.Side) error {
	if e.DryRun {
		e.logf("[dry-run] update %s %s from %s", dstSide, dst.RemoteID, dstSide.Other())
		e.countUpdate(st, dstSide)
		return nil
	}
	e.logf("[update] %s: %s ← %s", s.SyncID, dstSide, dstSide.Other())

	out := *src
	out.SyncID = s.SyncID
	newTok, conflict, err := e.update(ctx, dstSide, dst.RemoteID, &out, dst.Token)
	if conflict {
		st.Conflicts++
		e.logf("[conflict] %s: %s token went stale mid-run, deferring to next run", s.SyncID, dstSide)
		return nil
	}
	if err != nil {
		return err
	}
	e.countUpdate(st, dstSide)

	e.setTokens(s, src.Token, dstSide.Other())
	e.setTokens(s, newTok, dstSide)
	return e.Store.Upsert(ctx, s)
}

// advanceRecurring handles a recurring task marked done: the due date moves
// to the next occurrence and the done flag is reset on both sides. A
// terminal done state is never written to either side, because some
// calendar servers silently kill the whole recurrence series on
// STATUS:COMPLETED.
func (e *Engine) advanceRecurring(ctx context.Context, st *Stats, s *model.Link, src, dst *model.Record, dstSide model.Side) error {
	from := model.DateOf(time.Now())
	if src.Due != nil {
		from = *src.Due
	}
	next, ok := e.Hooks.NextOccurrence(src.RRule, from)
	if !ok {
		e.logf("[recurring] %s: rule yielded no occurrence, advanced due date by one day to %s", s.SyncID, next)
	} else {
		e.logf("[recurring] %s: advancing due %s → %s", s.SyncID, from, next)
	}

	if e.DryRun {
		e.logf("[dry-run] advance recurring %s on both sides", s.SyncID)
		st.Recurring++
		return nil
	}

	out := *src
	out.SyncID = s.SyncID
	out.Due = &next
	out.Done = false

	dstTok, conflict, err := e.update(ctx, dstSide, dst.RemoteID, &out, dst.Token)
	if conflict {
		st.Conflicts++
		return nil
	}
	if err != nil {
		return err
	}
	srcTok, conflict, err := e.update(ctx, dstSide.Other(), src.RemoteID, &out, src.Token)
	if conflict {
		st.Conflicts++
		return nil
	}
	if err != nil {
		return err
	}
	st.Recurring++

	e.setTokens(s, srcTok, dstSide.Other())
	e.setTokens(s, dstTok, dstSide)
	return e.Store.Upsert(ctx, s)
}

// archiveCompleted handles a one-shot task marked done: the counterpart is
// soft-deleted (archived) rather than destroyed, preserving history, and
// the link is parked as archived.
func (e *Engine) archiveCompleted(ctx context.Context, st *Stats, s *model.Link, src, dst *model.Record, dstSide model.Side) error {
	if e.DryRun {
		e.logf("[dry-run] archive %s %s (completed on %s)", dstSide, dst.RemoteID, dstSide.Other())
		st.Archived++
		return nil
	}
	e.logf("[archive] %s: completed on %s, archiving %s counterpart", s.SyncID, dstSide.Other(), dstSide)

	dstTok := dst.Token
	if arch, ok := e.adapterFor(dstSide).(Archiver); ok {
		err := e.retryFor(dstSide).Do(ctx, fmt.Sprintf("archive %s %s", dstSide, s.SyncID), func() error {
			return arch.Archive(ctx, dst.RemoteID)
		})
		if err != nil {
			return err
		}
	} else {
		// No soft-delete on this side: write the final done state once.
		out := *src
		out.SyncID = s.SyncID
		tok, conflict, err := e.update(ctx, dstSide, dst.RemoteID, &out, dst.Token)
		if conflict {
			st.Conflicts++
			return nil
		}
		if err != nil {
			return err
		}
		dstTok = tok
	}
	st.Archived++

	s.Archived = true
	e.setTokens(s, src.Token, dstSide.Other())
	e.setTokens(s, dstTok, dstSide)
	return e.Store.Upsert(ctx, s)
}

// update performs a precondition-guarded write through the side's retry
// wrapper. A stale token is not an error: it is reported as conflict=true
// and resolved on the next run, when both tokens are re-read.
func (e *Engine) update(ctx context.Context, side model.Side, remoteID string, rec *model.Record, expectedToken string) (token string, conflict bool, err error) {
	err = e.retryFor(side).Do(ctx, fmt.Sprintf("update %s %s", side, rec.SyncID), func() error {
		tok, err := e.adapterFor(side).Update(ctx, remoteID, rec, expectedToken)
		if err != nil {
			return err
		}
		token = tok
		return nil
	})
	if errors.Is(err, retry.ErrPrecondition) {
		return "", true, nil
	}
	return token, false, err
}

func (e *Engine) countUpdate(st *Stats, side model.Side) {
	if side == model.SideA {
		st.UpdatedA++
	} else {
		st.UpdatedB++
	}
}

func (e *Engine) setTokens(l *model.Link, token string, side model.Side) {
	if side == model.SideA {
		l.ATok = token
	} else {
		l.BTok = token
	}
}
