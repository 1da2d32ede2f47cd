package people

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/people/v1"

	"github.com/cookkie03/davsync/pkg/model"
	"github.com/cookkie03/davsync/pkg/retry"
)

// Contacts is the adapter over the authenticated connections of one
// Google account.
type Contacts struct {
	srv      *people.Service
	pageSize int64
}

func NewContacts(srv *people.Service) *Contacts {
	return &Contacts{srv: srv, pageSize: 1000}
}

func (c *Contacts) Name() string { return "google" }

func (c *Contacts) ListAll(ctx context.Context) ([]*model.Record, error) {
	var out []*model.Record
	pageToken := ""
	for {
		call := c.srv.People.Connections.List("people/me").
			PersonFields(personFields).
			PageSize(c.pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing connections: %w", classify(err))
		}
		for _, p := range resp.Connections {
			out = append(out, personToRecord(p))
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (c *Contacts) Create(ctx context.Context, rec *model.Record) (string, string, error) {
	p, err := c.srv.People.CreateContact(recordToPerson(rec)).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("creating contact: %w", classify(err))
	}
	return p.ResourceName, p.Etag, nil
}

// Update rewrites the synced fields. The People API enforces the etag
// precondition itself, so a stale expectedToken fails without a write.
func (c *Contacts) Update(ctx context.Context, remoteID string, rec *model.Record, expectedToken string) (string, error) {
	p := recordToPerson(rec)
	p.Etag = expectedToken
	updated, err := c.srv.People.UpdateContact(remoteID, p).
		UpdatePersonFields(personFields).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("updating %s: %w", remoteID, classify(err))
	}
	return updated.Etag, nil
}

func (c *Contacts) Delete(ctx context.Context, remoteID string) error {
	_, err := c.srv.People.DeleteContact(remoteID).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 404 {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", remoteID, classify(err))
	}
	return nil
}

// Anchor stores syncID in the person's external ids.
func (c *Contacts) Anchor(ctx context.Context, rec *model.Record, syncID string) (string, error) {
	p := &people.Person{
		Etag:        rec.Token,
		ExternalIds: []*people.ExternalId{{Value: syncID, Type: externalIDType}},
	}
	updated, err := c.srv.People.UpdateContact(rec.RemoteID, p).
		UpdatePersonFields("externalIds").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("anchoring %s: %w", rec.RemoteID, classify(err))
	}
	return updated.Etag, nil
}

// classify maps API failures onto the retry sentinels: an etag mismatch is
// a precondition failure, throttling and server errors are transient,
// every other client error is permanent.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == 400 && strings.Contains(strings.ToLower(gerr.Message), "etag"):
		return retry.Precondition(err)
	case gerr.Code == 429 || gerr.Code >= 500:
		return err
	default:
		return retry.Permanent(err)
	}
}
