package dav

import (
	"strings"
	"testing"

	"github.com/cookkie03/davsync/pkg/model"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestDecodeTodoFields(t *testing.T) {
	data := crlf(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VTODO
UID:todo-9
SUMMARY:Water plants
DESCRIPTION:Back garden first
DUE;VALUE=DATE:20260301
STATUS:COMPLETED
PRIORITY:5
RRULE:FREQ=WEEKLY;BYDAY=SU
CATEGORIES:home
LOCATION:Garden
END:VTODO
END:VCALENDAR
`)

	rec, err := decodeTodo([]byte(data), "/dav/tasks/todo-9.ics", "e1")
	if err != nil {
		t.Fatalf("decodeTodo: %v", err)
	}
	if rec.SyncID != "todo-9" {
		t.Errorf("uid = %q", rec.SyncID)
	}
	if rec.Summary != "Water plants" || rec.Description != "Back garden first" {
		t.Errorf("summary/description = %q / %q", rec.Summary, rec.Description)
	}
	if !rec.Done {
		t.Error("COMPLETED not mapped to done")
	}
	if rec.Priority != model.PriorityMedium {
		t.Errorf("priority = %v", rec.Priority)
	}
	if rec.RRule != "FREQ=WEEKLY;BYDAY=SU" {
		t.Errorf("rrule = %q", rec.RRule)
	}
	if !rec.Recurring() {
		t.Error("record with RRULE must be recurring")
	}
	if rec.Due == nil || rec.Due.String() != "2026-03-01" {
		t.Errorf("due = %v", rec.Due)
	}
	if rec.List != "home" || rec.Location != "Garden" {
		t.Errorf("list/location = %q / %q", rec.List, rec.Location)
	}
}

func TestDecodeTodoDateTimeDue(t *testing.T) {
	data := crlf(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VTODO
UID:todo-1
SUMMARY:Call dentist
DUE:20260423T090000Z
END:VTODO
END:VCALENDAR
`)
	rec, err := decodeTodo([]byte(data), "/x.ics", "e1")
	if err != nil {
		t.Fatalf("decodeTodo: %v", err)
	}
	if rec.Due == nil || rec.Due.String() != "2026-04-23" {
		t.Errorf("due = %v, want 2026-04-23", rec.Due)
	}
}

func TestEncodeTodoRoundTrip(t *testing.T) {
	due := &model.Date{Year: 2026, Month: 3, Day: 15}
	in := &model.Record{
		SyncID:      "todo-5",
		Summary:     "Buy milk",
		Description: "Oat, not dairy",
		Due:         due,
		Priority:    model.PriorityHigh,
		RRule:       "FREQ=DAILY",
		List:        "errands",
	}

	data, err := encodeTodo(in)
	if err != nil {
		t.Fatalf("encodeTodo: %v", err)
	}
	out, err := decodeTodo(data, "/x.ics", "e1")
	if err != nil {
		t.Fatalf("decodeTodo(encodeTodo): %v", err)
	}
	if out.SyncID != in.SyncID || out.Summary != in.Summary || out.Description != in.Description {
		t.Errorf("round trip lost text fields: %+v", out)
	}
	if out.Due == nil || *out.Due != *due {
		t.Errorf("due = %v", out.Due)
	}
	if out.Priority != model.PriorityHigh {
		t.Errorf("priority = %v", out.Priority)
	}
	if out.RRule != "FREQ=DAILY" {
		t.Errorf("rrule = %q", out.RRule)
	}
	if out.Done {
		t.Error("fresh record must not decode as done")
	}
}

func TestEncodeTodoDoneStatus(t *testing.T) {
	data, err := encodeTodo(&model.Record{SyncID: "t", Summary: "s", Done: true})
	if err != nil {
		t.Fatalf("encodeTodo: %v", err)
	}
	if !strings.Contains(string(data), "STATUS:COMPLETED") {
		t.Errorf("missing COMPLETED status in %q", data)
	}
}
