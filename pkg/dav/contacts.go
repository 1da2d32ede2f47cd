package dav

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/cookkie03/davsync/pkg/model"
)

// Contacts adapts a CardDAV addressbook to the engine's Adapter surface.
// Like VTODOs, the vCard UID is the sync identifier.
type Contacts struct {
	client *Client
}

func NewContacts(client *Client) *Contacts {
	return &Contacts{client: client}
}

func (c *Contacts) Name() string { return "carddav" }

func (c *Contacts) ListAll(ctx context.Context) ([]*model.Record, error) {
	resources, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	out := make([]*model.Record, 0, len(resources))
	for _, res := range resources {
		if !strings.HasSuffix(res.Href, ".vcf") {
			continue
		}
		body, etag, err := c.client.Get(ctx, res.Href)
		if err != nil {
			return nil, err
		}
		rec, err := decodeContact(body, res.Href, etag)
		if err != nil {
			log.Printf("[carddav] skipping unparsable resource: %v", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Contacts) Create(ctx context.Context, rec *model.Record) (string, string, error) {
	body, err := encodeContact(rec)
	if err != nil {
		return "", "", err
	}
	href := path.Join("/", hrefPath(c.client.BaseURL), rec.SyncID+".vcf")
	etag, err := c.client.Put(ctx, href, body, "text/vcard; charset=utf-8", "")
	if err != nil {
		return "", "", err
	}
	return href, etag, nil
}

func (c *Contacts) Update(ctx context.Context, remoteID string, rec *model.Record, expectedToken string) (string, error) {
	body, err := encodeContact(rec)
	if err != nil {
		return "", err
	}
	return c.client.Put(ctx, remoteID, body, "text/vcard; charset=utf-8", expectedToken)
}

func (c *Contacts) Delete(ctx context.Context, remoteID string) error {
	return c.client.Delete(ctx, remoteID)
}

// Anchor rewrites the vCard in place with syncID as its UID.
func (c *Contacts) Anchor(ctx context.Context, rec *model.Record, syncID string) (string, error) {
	out := *rec
	out.SyncID = syncID
	return c.Update(ctx, rec.RemoteID, &out, rec.Token)
}
