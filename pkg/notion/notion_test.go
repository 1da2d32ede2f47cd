package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/cookkie03/davsync/pkg/model"
	"github.com/cookkie03/davsync/pkg/retry"
)

// fakeNotion is the slice of the pages API the adapter touches: database
// query with cursor pagination, page get, page create, page patch.
type fakeNotion struct {
	mu    sync.Mutex
	pages map[string]*page
	seq   int
}

func newFakeNotion() *fakeNotion {
	return &fakeNotion{pages: make(map[string]*page)}
}

func (f *fakeNotion) stamp() string {
	f.seq++
	return fmt.Sprintf("2026-01-01T00:00:00.%03dZ", f.seq)
}

func (f *fakeNotion) put(props map[string]property) *page {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	p := &page{
		ID:             fmt.Sprintf("page-%03d", f.seq),
		LastEditedTime: f.stamp(),
		Properties:     props,
	}
	f.pages[p.ID] = p
	return p
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/query"):
		f.query(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/pages":
		var req createRequest
		json.NewDecoder(r.Body).Decode(&req)
		p := &page{Properties: req.Properties, LastEditedTime: f.stamp()}
		f.seq++
		p.ID = fmt.Sprintf("page-%03d", f.seq)
		f.pages[p.ID] = p
		json.NewEncoder(w).Encode(p)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/pages/"):
		p, ok := f.pages[strings.TrimPrefix(r.URL.Path, "/v1/pages/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(p)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/v1/pages/"):
		p, ok := f.pages[strings.TrimPrefix(r.URL.Path, "/v1/pages/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Archived   *bool               `json:"archived"`
			Properties map[string]property `json:"properties"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Archived != nil {
			p.Archived = *req.Archived
		}
		for name, prop := range req.Properties {
			p.Properties[name] = prop
		}
		p.LastEditedTime = f.stamp()
		json.NewEncoder(w).Encode(p)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// query paginates two pages at a time to exercise the cursor loop.
func (f *fakeNotion) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	json.NewDecoder(r.Body).Decode(&req)

	ids := make([]string, 0, len(f.pages))
	for id := range f.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if req.StartCursor != "" {
		for i, id := range ids {
			if id == req.StartCursor {
				start = i
				break
			}
		}
	}
	end := start + 2
	if end > len(ids) {
		end = len(ids)
	}
	resp := queryResponse{HasMore: end < len(ids)}
	for _, id := range ids[start:end] {
		resp.Results = append(resp.Results, *f.pages[id])
	}
	if resp.HasMore {
		resp.NextCursor = ids[end]
	}
	json.NewEncoder(w).Encode(resp)
}

func newTestDatabase(t *testing.T, fake *fakeNotion) *Database {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	d := NewDatabase("secret", "db-1")
	d.BaseURL = srv.URL
	return d
}

func taskProps(title, uid, due string, done bool) map[string]property {
	status := statusNotDone
	if done {
		status = statusDone
	}
	props := map[string]property{
		propName: {Title: text(title)},
		propUID:  {RichText: text(uid)},
		propDone: {Status: &selectValue{Name: status}},
	}
	if due != "" {
		props[propDue] = property{Date: &dateValue{Start: due}}
	}
	return props
}

func TestListAllPaginatesAndSkipsArchived(t *testing.T) {
	fake := newFakeNotion()
	for i := 0; i < 5; i++ {
		fake.put(taskProps(fmt.Sprintf("task %d", i), fmt.Sprintf("uid-%d", i), "", false))
	}
	archived := fake.put(taskProps("gone", "uid-gone", "", false))
	archived.Archived = true

	d := newTestDatabase(t, fake)
	recs, err := d.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("got %d records, want 5", len(recs))
	}
	for _, rec := range recs {
		if rec.SyncID == "uid-gone" {
			t.Error("archived page leaked into listing")
		}
	}
}

func TestPageToRecordMapsFields(t *testing.T) {
	fake := newFakeNotion()
	props := taskProps("Water plants", "uid-1", "2026-03-01", true)
	props[propPriority] = property{Select: &selectValue{Name: "High"}}
	props[propList] = property{Select: &selectValue{Name: "home"}}
	props[propRecurrence] = property{RichText: text("FREQ=WEEKLY")}
	p := fake.put(props)

	d := newTestDatabase(t, fake)
	recs, err := d.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	rec := recs[0]
	if rec.RemoteID != p.ID || rec.Token != p.LastEditedTime {
		t.Errorf("identity = %q / %q", rec.RemoteID, rec.Token)
	}
	if rec.Summary != "Water plants" || rec.SyncID != "uid-1" {
		t.Errorf("title/uid = %q / %q", rec.Summary, rec.SyncID)
	}
	if !rec.Done || rec.Priority != model.PriorityHigh || rec.List != "home" {
		t.Errorf("done/priority/list = %v/%v/%q", rec.Done, rec.Priority, rec.List)
	}
	if rec.RRule != "FREQ=WEEKLY" || !rec.Recurring() {
		t.Errorf("rrule = %q", rec.RRule)
	}
	if rec.Due == nil || rec.Due.String() != "2026-03-01" {
		t.Errorf("due = %v", rec.Due)
	}
	if rec.Fingerprint != "water plants|2026-03-01" {
		t.Errorf("fingerprint = %q", rec.Fingerprint)
	}
}

func TestCreateThenUpdate(t *testing.T) {
	fake := newFakeNotion()
	d := newTestDatabase(t, fake)
	ctx := context.Background()

	due := &model.Date{Year: 2026, Month: 3, Day: 15}
	rec := &model.Record{SyncID: "uid-1", Summary: "Buy milk", Due: due, Priority: model.PriorityMedium}

	id, tok, err := d.Create(ctx, rec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" || tok == "" {
		t.Fatalf("empty identity from create: %q / %q", id, tok)
	}

	rec.Summary = "Buy oat milk"
	newTok, err := d.Update(ctx, id, rec, tok)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if newTok == tok {
		t.Error("token did not advance on update")
	}

	recs, _ := d.ListAll(ctx)
	if len(recs) != 1 || recs[0].Summary != "Buy oat milk" {
		t.Errorf("after update: %+v", recs)
	}
}

func TestUpdateStaleTokenIsPrecondition(t *testing.T) {
	fake := newFakeNotion()
	p := fake.put(taskProps("Buy milk", "uid-1", "", false))
	d := newTestDatabase(t, fake)

	_, err := d.Update(context.Background(), p.ID, &model.Record{Summary: "x"}, "2020-01-01T00:00:00.000Z")
	if !errors.Is(err, retry.ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
}

func TestArchiveHidesPage(t *testing.T) {
	fake := newFakeNotion()
	p := fake.put(taskProps("file taxes", "uid-1", "", true))
	d := newTestDatabase(t, fake)
	ctx := context.Background()

	if err := d.Archive(ctx, p.ID); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	recs, err := d.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("archived page still listed: %+v", recs)
	}
}

func TestAnchorWritesUID(t *testing.T) {
	fake := newFakeNotion()
	p := fake.put(taskProps("Buy milk", "", "", false))
	d := newTestDatabase(t, fake)
	ctx := context.Background()

	tok, err := d.Anchor(ctx, &model.Record{RemoteID: p.ID}, "uid-9")
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if tok == "" {
		t.Error("empty token from anchor")
	}
	recs, _ := d.ListAll(ctx)
	if len(recs) != 1 || recs[0].SyncID != "uid-9" {
		t.Errorf("anchored uid = %+v", recs)
	}
	if recs[0].Summary != "Buy milk" {
		t.Error("anchor clobbered other properties")
	}
}
