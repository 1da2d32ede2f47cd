package dav

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/cookkie03/davsync/pkg/fingerprint"
	"github.com/cookkie03/davsync/pkg/model"
)

// decodeContact parses a vCard stream into a Record.
func decodeContact(data []byte, href, etag string) (*model.Record, error) {
	card, err := vcard.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", href, err)
	}

	rec := &model.Record{
		RemoteID: href,
		Token:    etag,
		SyncID:   card.Value(vcard.FieldUID),
		Summary:  card.Value(vcard.FieldFormattedName),
		Birthday: card.Value(vcard.FieldBirthday),
		Note:     card.Value(vcard.FieldNote),
		Emails:   card.Values(vcard.FieldEmail),
		Phones:   card.Values(vcard.FieldTelephone),
	}
	if n := card.Name(); n != nil {
		rec.GivenName = n.GivenName
		rec.FamilyName = n.FamilyName
	}
	if rec.Summary == "" {
		rec.Summary = strings.TrimSpace(rec.GivenName + " " + rec.FamilyName)
	}

	rec.Fingerprint = fingerprint.Contact(rec.Summary, rec.Emails, rec.Phones)
	return rec, nil
}

// encodeContact renders a Record as a version 4.0 vCard.
func encodeContact(rec *model.Record) ([]byte, error) {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldUID, rec.SyncID)
	card.SetValue(vcard.FieldFormattedName, displayName(rec))
	if rec.GivenName != "" || rec.FamilyName != "" {
		card.AddName(&vcard.Name{
			GivenName:  rec.GivenName,
			FamilyName: rec.FamilyName,
		})
	}
	for _, e := range rec.Emails {
		card.AddValue(vcard.FieldEmail, e)
	}
	for _, p := range rec.Phones {
		card.AddValue(vcard.FieldTelephone, p)
	}
	if rec.Birthday != "" {
		card.SetValue(vcard.FieldBirthday, rec.Birthday)
	}
	if rec.Note != "" {
		card.SetValue(vcard.FieldNote, rec.Note)
	}
	vcard.ToV4(card)

	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return nil, fmt.Errorf("encoding vcard %s: %w", rec.SyncID, err)
	}
	return buf.Bytes(), nil
}

func displayName(rec *model.Record) string {
	if rec.Summary != "" {
		return rec.Summary
	}
	return strings.TrimSpace(rec.GivenName + " " + rec.FamilyName)
}
