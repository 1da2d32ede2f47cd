package dav

import (
	"testing"

	"github.com/cookkie03/davsync/pkg/model"
)

var sampleContact = model.Record{
	Summary:    "Anna Smith",
	GivenName:  "Anna",
	FamilyName: "Smith",
	Emails:     []string{"anna@example.org"},
	Phones:     []string{"+4915112345678"},
	Birthday:   "1990-04-01",
	Note:       "met at gophercon",
}

func TestDecodeContactFields(t *testing.T) {
	data := crlf(`BEGIN:VCARD
VERSION:4.0
UID:uid-7
FN:Anna Smith
N:Smith;Anna;;;
EMAIL:anna@example.org
EMAIL:anna.smith@work.example
TEL:+49 151 1234 5678
BDAY:1990-04-01
NOTE:met at gophercon
END:VCARD
`)

	rec, err := decodeContact([]byte(data), "/dav/contacts/uid-7.vcf", "e1")
	if err != nil {
		t.Fatalf("decodeContact: %v", err)
	}
	if rec.SyncID != "uid-7" || rec.Summary != "Anna Smith" {
		t.Errorf("uid/fn = %q / %q", rec.SyncID, rec.Summary)
	}
	if rec.GivenName != "Anna" || rec.FamilyName != "Smith" {
		t.Errorf("name = %q %q", rec.GivenName, rec.FamilyName)
	}
	if len(rec.Emails) != 2 {
		t.Errorf("emails = %v", rec.Emails)
	}
	if rec.Birthday != "1990-04-01" || rec.Note != "met at gophercon" {
		t.Errorf("bday/note = %q / %q", rec.Birthday, rec.Note)
	}
	// Lowest-sorting email and normalized phone form the natural key.
	if rec.Fingerprint != "anna smith|anna.smith@work.example|+4915112345678" {
		t.Errorf("fingerprint = %q", rec.Fingerprint)
	}
}

func TestEncodeContactRoundTrip(t *testing.T) {
	in := sampleContact
	in.SyncID = "uid-1"

	data, err := encodeContact(&in)
	if err != nil {
		t.Fatalf("encodeContact: %v", err)
	}
	out, err := decodeContact(data, "/x.vcf", "e1")
	if err != nil {
		t.Fatalf("decodeContact(encodeContact): %v", err)
	}
	if out.SyncID != "uid-1" || out.Summary != "Anna Smith" {
		t.Errorf("uid/fn = %q / %q", out.SyncID, out.Summary)
	}
	if out.GivenName != "Anna" || out.FamilyName != "Smith" {
		t.Errorf("name = %q %q", out.GivenName, out.FamilyName)
	}
	if len(out.Emails) != 1 || out.Emails[0] != "anna@example.org" {
		t.Errorf("emails = %v", out.Emails)
	}
	if len(out.Phones) != 1 || out.Phones[0] != "+4915112345678" {
		t.Errorf("phones = %v", out.Phones)
	}
	if out.Fingerprint != in.Fingerprint && in.Fingerprint != "" {
		t.Errorf("fingerprint changed: %q", out.Fingerprint)
	}
}

func TestDecodeContactWithoutFormattedName(t *testing.T) {
	data := crlf(`BEGIN:VCARD
VERSION:4.0
UID:uid-2
N:Smith;Anna;;;
END:VCARD
`)
	rec, err := decodeContact([]byte(data), "/x.vcf", "e1")
	if err != nil {
		t.Fatalf("decodeContact: %v", err)
	}
	if rec.Summary != "Anna Smith" {
		t.Errorf("summary fallback = %q", rec.Summary)
	}
}
