// Package model defines the generic record and link types shared by both
// sync domains (tasks and contacts) and by every adapter.
package model

import (
	"fmt"
	"time"
)

// Side identifies one of the two record stores in a sync pair.
type Side int

const (
	SideA Side = iota // CalDAV / CardDAV
	SideB             // Notion / Google People
)

func (s Side) String() string {
	if s == SideA {
		return "a"
	}
	return "b"
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Priority is the domain-neutral priority bucket. Adapters map it to and
// from their native scheme (iCal 0-9, Notion select names).
type Priority int

const (
	PriorityNone Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	}
	return "None"
}

// PriorityFromICal maps an iCal PRIORITY value (0-9) to a bucket.
// 0 is undefined, 1-2 high, 3-5 medium, 6-9 low.
func PriorityFromICal(v int) Priority {
	switch {
	case v <= 0:
		return PriorityNone
	case v <= 2:
		return PriorityHigh
	case v <= 5:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ICal returns the representative iCal PRIORITY value for the bucket.
func (p Priority) ICal() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 5
	case PriorityLow:
		return 9
	}
	return 0
}

// PriorityFromName parses a bucket name, defaulting to None.
func PriorityFromName(name string) Priority {
	switch name {
	case "High":
		return PriorityHigh
	case "Medium":
		return PriorityMedium
	case "Low":
		return PriorityLow
	}
	return PriorityNone
}

// Date is a calendar date without a time component. Due dates are carried as
// dates on the wire everywhere (iCal DUE;VALUE=DATE, Notion date start), so
// the model never holds a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD, tolerating a trailing time component the way
// remote APIs append one ("2026-02-23T09:00:00.000+01:00").
func ParseDate(s string) (*Date, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	d := DateOf(t)
	return &d, nil
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// Record is one task or contact as read from one side. Records are ephemeral:
// they are re-fetched in full every run and never cached, so every field
// reflects the remote state at fetch time.
type Record struct {
	// SyncID is the durable cross-system identifier (the vCard/VTODO UID,
	// or the anchor written into the hosted side). Empty until the record
	// is anchored.
	SyncID string
	// RemoteID is the side-local identifier: a DAV href, a Notion page ID,
	// or a People resourceName.
	RemoteID string
	// Token is the side's change token: an etag or last-edited timestamp.
	// Opaque; only compared for equality.
	Token string

	Summary     string
	Description string
	Due         *Date
	Priority    Priority
	Done        bool
	List        string
	Location    string
	URL         string
	// RRule holds the raw RRULE value. A non-empty RRule marks the task
	// as recurring, which changes completion handling.
	RRule string

	// Contact fields.
	GivenName  string
	FamilyName string
	Emails     []string
	Phones     []string
	Birthday   string
	Note       string

	// Fingerprint is the derived natural key, set by the adapter at fetch
	// time. Empty when the record has no identity-bearing fields.
	Fingerprint string
}

// Recurring reports whether the record repeats on a rule.
func (r *Record) Recurring() bool {
	return r.RRule != ""
}

// Link is the durable correlation between a Side-A record and a Side-B
// record. Links are the only state carried across runs.
type Link struct {
	SyncID      string
	AID         string // Side-A remote identifier
	BID         string // Side-B remote identifier
	ATok        string // last-observed Side-A change token
	BTok        string // last-observed Side-B change token
	Fingerprint string // fingerprint at time of linking
	// Archived marks a completed one-shot task whose counterpart was
	// soft-deleted. Archived links are terminal: the pair is never
	// reconciled again, the row only exists to stop re-creation.
	Archived bool
}

// TokenFor returns the stored token for the given side.
func (l *Link) TokenFor(s Side) string {
	if s == SideA {
		return l.ATok
	}
	return l.BTok
}

// RemoteIDFor returns the stored remote identifier for the given side.
func (l *Link) RemoteIDFor(s Side) string {
	if s == SideA {
		return l.AID
	}
	return l.BID
}
