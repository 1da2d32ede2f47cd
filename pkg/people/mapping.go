// Package people adapts the Google People API to the engine's Adapter
// surface. The person etag is the change token and doubles as the write
// precondition, since UpdateContact rejects stale etags server-side.
package people

import (
	"fmt"
	"strings"

	"google.golang.org/api/people/v1"

	"github.com/cookkie03/davsync/pkg/fingerprint"
	"github.com/cookkie03/davsync/pkg/model"
)

// externalIDType tags the external id slot carrying the sync identifier.
const externalIDType = "uid"

// personFields lists everything the sync reads or writes on a person.
const personFields = "names,emailAddresses,phoneNumbers,birthdays,biographies,externalIds"

// personToRecord maps a Person to the neutral record.
func personToRecord(p *people.Person) *model.Record {
	rec := &model.Record{
		RemoteID: p.ResourceName,
		Token:    p.Etag,
	}
	if len(p.Names) > 0 {
		n := p.Names[0]
		rec.GivenName = n.GivenName
		rec.FamilyName = n.FamilyName
		rec.Summary = n.DisplayName
	}
	if rec.Summary == "" {
		rec.Summary = strings.TrimSpace(rec.GivenName + " " + rec.FamilyName)
	}
	for _, e := range p.EmailAddresses {
		if e.Value != "" {
			rec.Emails = append(rec.Emails, e.Value)
		}
	}
	for _, ph := range p.PhoneNumbers {
		if ph.Value != "" {
			rec.Phones = append(rec.Phones, ph.Value)
		}
	}
	if len(p.Birthdays) > 0 {
		rec.Birthday = birthdayString(p.Birthdays[0])
	}
	if len(p.Biographies) > 0 {
		rec.Note = p.Biographies[0].Value
	}
	for _, ext := range p.ExternalIds {
		if ext.Type == externalIDType {
			rec.SyncID = ext.Value
			break
		}
	}

	rec.Fingerprint = fingerprint.Contact(rec.Summary, rec.Emails, rec.Phones)
	return rec
}

func birthdayString(b *people.Birthday) string {
	if b.Date != nil && b.Date.Year > 0 {
		return fmt.Sprintf("%04d-%02d-%02d", b.Date.Year, b.Date.Month, b.Date.Day)
	}
	return b.Text
}

// recordToPerson maps the neutral record to a Person payload covering
// exactly the fields in personFields.
func recordToPerson(rec *model.Record) *people.Person {
	p := &people.Person{}

	name := &people.Name{GivenName: rec.GivenName, FamilyName: rec.FamilyName}
	if name.GivenName == "" && name.FamilyName == "" {
		name.UnstructuredName = rec.Summary
	}
	p.Names = []*people.Name{name}

	for _, e := range rec.Emails {
		p.EmailAddresses = append(p.EmailAddresses, &people.EmailAddress{Value: e})
	}
	for _, ph := range rec.Phones {
		p.PhoneNumbers = append(p.PhoneNumbers, &people.PhoneNumber{Value: ph})
	}
	if rec.Birthday != "" {
		if d, err := model.ParseDate(rec.Birthday); err == nil {
			p.Birthdays = []*people.Birthday{{Date: &people.Date{
				Year:  int64(d.Year),
				Month: int64(d.Month),
				Day:   int64(d.Day),
			}}}
		} else {
			p.Birthdays = []*people.Birthday{{Text: rec.Birthday}}
		}
	}
	if rec.Note != "" {
		p.Biographies = []*people.Biography{{Value: rec.Note, ContentType: "TEXT_PLAIN"}}
	}
	if rec.SyncID != "" {
		p.ExternalIds = []*people.ExternalId{{Value: rec.SyncID, Type: externalIDType}}
	}
	return p
}
