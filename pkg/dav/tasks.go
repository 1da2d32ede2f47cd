package dav

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/cookkie03/davsync/pkg/model"
)

// Tasks adapts a CalDAV VTODO collection to the engine's Adapter surface.
// The VTODO UID doubles as the sync identifier, so anchoring rewrites the
// resource with the assigned UID.
type Tasks struct {
	client *Client
}

func NewTasks(client *Client) *Tasks {
	return &Tasks{client: client}
}

func (t *Tasks) Name() string { return "caldav" }

func (t *Tasks) ListAll(ctx context.Context) ([]*model.Record, error) {
	resources, err := t.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	out := make([]*model.Record, 0, len(resources))
	for _, res := range resources {
		if !strings.HasSuffix(res.Href, ".ics") {
			continue
		}
		body, etag, err := t.client.Get(ctx, res.Href)
		if err != nil {
			return nil, err
		}
		rec, err := decodeTodo(body, res.Href, etag)
		if err != nil {
			log.Printf("[caldav] skipping unparsable resource: %v", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (t *Tasks) Create(ctx context.Context, rec *model.Record) (string, string, error) {
	body, err := encodeTodo(rec)
	if err != nil {
		return "", "", err
	}
	href := path.Join("/", hrefPath(t.client.BaseURL), rec.SyncID+".ics")
	etag, err := t.client.Put(ctx, href, body, "text/calendar; charset=utf-8", "")
	if err != nil {
		return "", "", err
	}
	return href, etag, nil
}

func (t *Tasks) Update(ctx context.Context, remoteID string, rec *model.Record, expectedToken string) (string, error) {
	body, err := encodeTodo(rec)
	if err != nil {
		return "", err
	}
	return t.client.Put(ctx, remoteID, body, "text/calendar; charset=utf-8", expectedToken)
}

func (t *Tasks) Delete(ctx context.Context, remoteID string) error {
	return t.client.Delete(ctx, remoteID)
}

// Anchor rewrites the resource in place with syncID as its UID.
func (t *Tasks) Anchor(ctx context.Context, rec *model.Record, syncID string) (string, error) {
	out := *rec
	out.SyncID = syncID
	return t.Update(ctx, rec.RemoteID, &out, rec.Token)
}

// hrefPath extracts the server-absolute path portion of the collection URL
// so new resource hrefs match the form the server reports in multistatus.
func hrefPath(baseURL string) string {
	if i := strings.Index(baseURL, "://"); i >= 0 {
		rest := baseURL[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[j:]
		}
		return "/"
	}
	return baseURL
}
