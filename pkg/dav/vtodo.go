package dav

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/cookkie03/davsync/pkg/fingerprint"
	"github.com/cookkie03/davsync/pkg/model"
)

const prodID = "-//davsync//EN"

// decodeTodo parses the first VTODO in an iCalendar stream into a Record.
// The href and etag are carried through as the record's remote identity.
func decodeTodo(data []byte, href, etag string) (*model.Record, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", href, err)
	}
	var todo *ical.Component
	for _, child := range cal.Children {
		if child.Name == ical.CompToDo {
			todo = child
			break
		}
	}
	if todo == nil {
		return nil, fmt.Errorf("no VTODO component in %s", href)
	}

	rec := &model.Record{
		RemoteID: href,
		Token:    etag,
	}
	rec.SyncID = propText(todo, ical.PropUID)
	rec.Summary = propText(todo, ical.PropSummary)
	rec.Description = propText(todo, ical.PropDescription)
	rec.Location = propText(todo, ical.PropLocation)
	rec.URL = propText(todo, ical.PropURL)
	rec.List = propText(todo, ical.PropCategories)
	rec.Done = propText(todo, ical.PropStatus) == "COMPLETED"

	if p := todo.Props.Get(ical.PropPriority); p != nil {
		if v, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			rec.Priority = model.PriorityFromICal(v)
		}
	}
	if p := todo.Props.Get(ical.PropRecurrenceRule); p != nil {
		rec.RRule = p.Value
	}
	if p := todo.Props.Get(ical.PropDue); p != nil {
		due, err := parseDueValue(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", href, err)
		}
		rec.Due = due
	}

	rec.Fingerprint = fingerprint.Task(rec.Summary, rec.Due)
	return rec, nil
}

func propText(comp *ical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	text, err := p.Text()
	if err != nil {
		return p.Value
	}
	return text
}

// parseDueValue handles both DUE;VALUE=DATE:20260315 and full date-time
// forms, truncating to the calendar date either way.
func parseDueValue(p *ical.Prop) (*model.Date, error) {
	v := strings.TrimSpace(p.Value)
	if len(v) >= 8 {
		if t, err := time.Parse("20060102", v[:8]); err == nil {
			d := model.DateOf(t)
			return &d, nil
		}
	}
	t, err := p.DateTime(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid DUE %q: %w", p.Value, err)
	}
	d := model.DateOf(t)
	return &d, nil
}

// encodeTodo renders a Record as a single-VTODO iCalendar stream.
func encodeTodo(rec *model.Record) ([]byte, error) {
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, rec.SyncID)
	todo.Props.SetText(ical.PropSummary, rec.Summary)
	if rec.Description != "" {
		todo.Props.SetText(ical.PropDescription, rec.Description)
	}
	if rec.Location != "" {
		todo.Props.SetText(ical.PropLocation, rec.Location)
	}
	if rec.URL != "" {
		todo.Props.SetText(ical.PropURL, rec.URL)
	}
	if rec.List != "" {
		todo.Props.SetText(ical.PropCategories, rec.List)
	}
	if rec.Done {
		todo.Props.SetText(ical.PropStatus, "COMPLETED")
	} else {
		todo.Props.SetText(ical.PropStatus, "NEEDS-ACTION")
	}
	if rec.Priority != model.PriorityNone {
		todo.Props.SetText(ical.PropPriority, strconv.Itoa(rec.Priority.ICal()))
	}
	if rec.Due != nil {
		p := ical.NewProp(ical.PropDue)
		p.SetValueType(ical.ValueDate)
		p.Value = fmt.Sprintf("%04d%02d%02d", rec.Due.Year, int(rec.Due.Month), rec.Due.Day)
		todo.Props.Set(p)
	}
	if rec.RRule != "" {
		p := ical.NewProp(ical.PropRecurrenceRule)
		p.Value = rec.RRule
		todo.Props.Set(p)
	}
	stamp := ical.NewProp(ical.PropDateTimeStamp)
	stamp.SetDateTime(time.Now().UTC())
	todo.Props.Set(stamp)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Children = append(cal.Children, todo)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encoding VTODO %s: %w", rec.SyncID, err)
	}
	return buf.Bytes(), nil
}
