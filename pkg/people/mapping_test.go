package people

import (
	"testing"

	"google.golang.org/api/people/v1"

	"github.com/cookkie03/davsync/pkg/model"
)

func TestPersonToRecordMapsFields(t *testing.T) {
	p := &people.Person{
		ResourceName: "people/c123",
		Etag:         "etag-1",
		Names: []*people.Name{{
			GivenName:   "Anna",
			FamilyName:  "Smith",
			DisplayName: "Anna Smith",
		}},
		EmailAddresses: []*people.EmailAddress{{Value: "anna@example.org"}},
		PhoneNumbers:   []*people.PhoneNumber{{Value: "+49 151 1234 5678"}},
		Birthdays:      []*people.Birthday{{Date: &people.Date{Year: 1990, Month: 4, Day: 1}}},
		Biographies:    []*people.Biography{{Value: "met at gophercon"}},
		ExternalIds:    []*people.ExternalId{{Value: "uid-7", Type: externalIDType}},
	}

	rec := personToRecord(p)
	if rec.RemoteID != "people/c123" || rec.Token != "etag-1" {
		t.Errorf("identity = %q / %q", rec.RemoteID, rec.Token)
	}
	if rec.SyncID != "uid-7" {
		t.Errorf("sync id = %q", rec.SyncID)
	}
	if rec.Summary != "Anna Smith" || rec.GivenName != "Anna" || rec.FamilyName != "Smith" {
		t.Errorf("name = %q (%q %q)", rec.Summary, rec.GivenName, rec.FamilyName)
	}
	if rec.Birthday != "1990-04-01" {
		t.Errorf("birthday = %q", rec.Birthday)
	}
	if rec.Note != "met at gophercon" {
		t.Errorf("note = %q", rec.Note)
	}
	if rec.Fingerprint != "anna smith|anna@example.org|+4915112345678" {
		t.Errorf("fingerprint = %q", rec.Fingerprint)
	}
}

func TestPersonToRecordIgnoresForeignExternalIDs(t *testing.T) {
	p := &people.Person{
		ResourceName: "people/c1",
		Names:        []*people.Name{{DisplayName: "Bob"}},
		ExternalIds:  []*people.ExternalId{{Value: "crm-42", Type: "customer"}},
	}
	if rec := personToRecord(p); rec.SyncID != "" {
		t.Errorf("sync id = %q, want empty", rec.SyncID)
	}
}

func TestRecordToPersonRoundTrip(t *testing.T) {
	in := &model.Record{
		SyncID:     "uid-1",
		GivenName:  "Anna",
		FamilyName: "Smith",
		Emails:     []string{"anna@example.org"},
		Phones:     []string{"+4915112345678"},
		Birthday:   "1990-04-01",
		Note:       "met at gophercon",
	}

	p := recordToPerson(in)
	p.ResourceName = "people/c1"
	p.Names[0].DisplayName = "Anna Smith"

	out := personToRecord(p)
	if out.SyncID != in.SyncID {
		t.Errorf("sync id = %q", out.SyncID)
	}
	if out.GivenName != "Anna" || out.FamilyName != "Smith" {
		t.Errorf("name = %q %q", out.GivenName, out.FamilyName)
	}
	if len(out.Emails) != 1 || out.Emails[0] != "anna@example.org" {
		t.Errorf("emails = %v", out.Emails)
	}
	if out.Birthday != "1990-04-01" || out.Note != "met at gophercon" {
		t.Errorf("birthday/note = %q / %q", out.Birthday, out.Note)
	}
}

func TestRecordToPersonUnstructuredNameFallback(t *testing.T) {
	p := recordToPerson(&model.Record{Summary: "Cher"})
	if len(p.Names) != 1 || p.Names[0].UnstructuredName != "Cher" {
		t.Errorf("names = %+v", p.Names)
	}
}

func TestBirthdayTextFallback(t *testing.T) {
	got := birthdayString(&people.Birthday{Text: "April 1st"})
	if got != "April 1st" {
		t.Errorf("birthday = %q", got)
	}
	p := recordToPerson(&model.Record{Summary: "x", Birthday: "April 1st"})
	if len(p.Birthdays) != 1 || p.Birthdays[0].Text != "April 1st" {
		t.Errorf("birthdays = %+v", p.Birthdays)
	}
}
