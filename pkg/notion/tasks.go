package notion

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cookkie03/davsync/pkg/model"
	"github.com/cookkie03/davsync/pkg/retry"
)

type parentRef struct {
	DatabaseID string `json:"database_id"`
}

type createRequest struct {
	Parent     parentRef           `json:"parent"`
	Properties map[string]property `json:"properties"`
}

type updateRequest struct {
	Properties map[string]property `json:"properties"`
}

type archiveRequest struct {
	Archived bool `json:"archived"`
}

// ListAll enumerates every non-archived page of the database.
func (d *Database) ListAll(ctx context.Context) ([]*model.Record, error) {
	pages, err := d.queryPages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Record, 0, len(pages))
	for i := range pages {
		if pages[i].Archived {
			continue
		}
		out = append(out, pageToRecord(&pages[i]))
	}
	return out, nil
}

func (d *Database) Create(ctx context.Context, rec *model.Record) (string, string, error) {
	var p page
	err := d.call(ctx, http.MethodPost, "/v1/pages", createRequest{
		Parent:     parentRef{DatabaseID: d.DatabaseID},
		Properties: recordToProperties(rec),
	}, &p)
	if err != nil {
		return "", "", fmt.Errorf("creating page: %w", err)
	}
	return p.ID, p.LastEditedTime, nil
}

// Update patches the page after verifying it has not moved past
// expectedToken. The check-then-patch is not atomic; a write racing into
// the gap is caught on the next run by the token comparison.
func (d *Database) Update(ctx context.Context, remoteID string, rec *model.Record, expectedToken string) (string, error) {
	if expectedToken != "" {
		cur, err := d.getPage(ctx, remoteID)
		if err != nil {
			return "", err
		}
		if cur.LastEditedTime != expectedToken {
			return "", retry.Precondition(
				fmt.Errorf("page %s edited at %s, expected %s", remoteID, cur.LastEditedTime, expectedToken))
		}
	}
	p, err := d.patchPage(ctx, remoteID, updateRequest{Properties: recordToProperties(rec)})
	if err != nil {
		return "", err
	}
	return p.LastEditedTime, nil
}

// Delete archives the page; the API has no hard delete.
func (d *Database) Delete(ctx context.Context, remoteID string) error {
	return d.Archive(ctx, remoteID)
}

// Archive soft-deletes the page. Archived pages drop out of database
// queries but stay restorable from the Notion trash.
func (d *Database) Archive(ctx context.Context, remoteID string) error {
	_, err := d.patchPage(ctx, remoteID, archiveRequest{Archived: true})
	return err
}

// Anchor writes syncID into the page's UID property.
func (d *Database) Anchor(ctx context.Context, rec *model.Record, syncID string) (string, error) {
	p, err := d.patchPage(ctx, rec.RemoteID, updateRequest{
		Properties: map[string]property{propUID: {RichText: text(syncID)}},
	})
	if err != nil {
		return "", err
	}
	return p.LastEditedTime, nil
}
