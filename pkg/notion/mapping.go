package notion

import (
	"log"
	"strings"

	"github.com/cookkie03/davsync/pkg/fingerprint"
	"github.com/cookkie03/davsync/pkg/model"
)

// Property names of the task database schema.
const (
	propName        = "Name"
	propUID         = "UID"
	propDescription = "Description"
	propDue         = "Due"
	propPriority    = "Priority"
	propList        = "List"
	propLocation    = "Location"
	propURL         = "URL"
	propRecurrence  = "Recurrence"
	propDone        = "Done"
)

const (
	statusDone    = "Done"
	statusNotDone = "Not started"
)

type page struct {
	ID             string              `json:"id"`
	Archived       bool                `json:"archived"`
	LastEditedTime string              `json:"last_edited_time"`
	Properties     map[string]property `json:"properties"`
}

type property struct {
	Title    []richText   `json:"title,omitempty"`
	RichText []richText   `json:"rich_text,omitempty"`
	Date     *dateValue   `json:"date,omitempty"`
	Select   *selectValue `json:"select,omitempty"`
	Status   *selectValue `json:"status,omitempty"`
	URL      string       `json:"url,omitempty"`
}

type richText struct {
	Text      *textContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type textContent struct {
	Content string `json:"content"`
}

type dateValue struct {
	Start string `json:"start"`
}

type selectValue struct {
	Name string `json:"name"`
}

func text(content string) []richText {
	return []richText{{Text: &textContent{Content: content}}}
}

func plain(rts []richText) string {
	var b strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

// pageToRecord maps a page to the neutral record. The page id is the
// remote identifier and last_edited_time the change token.
func pageToRecord(p *page) *model.Record {
	rec := &model.Record{
		RemoteID: p.ID,
		Token:    p.LastEditedTime,
	}
	props := p.Properties
	rec.Summary = plain(props[propName].Title)
	rec.SyncID = plain(props[propUID].RichText)
	rec.Description = plain(props[propDescription].RichText)
	rec.Location = plain(props[propLocation].RichText)
	rec.RRule = plain(props[propRecurrence].RichText)
	rec.URL = props[propURL].URL

	if d := props[propDue].Date; d != nil && d.Start != "" {
		due, err := model.ParseDate(d.Start)
		if err != nil {
			log.Printf("[notion] page %s: %v", p.ID, err)
		} else {
			rec.Due = due
		}
	}
	if s := props[propPriority].Select; s != nil {
		rec.Priority = model.PriorityFromName(s.Name)
	}
	if s := props[propList].Select; s != nil {
		rec.List = s.Name
	}
	if s := props[propDone].Status; s != nil {
		rec.Done = s.Name == statusDone
	}

	rec.Fingerprint = fingerprint.Task(rec.Summary, rec.Due)
	return rec
}

// recordToProperties maps a record to the page property payload.
func recordToProperties(rec *model.Record) map[string]property {
	props := map[string]property{
		propName:        {Title: text(rec.Summary)},
		propUID:         {RichText: text(rec.SyncID)},
		propDescription: {RichText: text(rec.Description)},
		propLocation:    {RichText: text(rec.Location)},
		propRecurrence:  {RichText: text(rec.RRule)},
	}
	if rec.Due != nil {
		props[propDue] = property{Date: &dateValue{Start: rec.Due.String()}}
	}
	if rec.Priority != model.PriorityNone {
		props[propPriority] = property{Select: &selectValue{Name: rec.Priority.String()}}
	}
	if rec.List != "" {
		props[propList] = property{Select: &selectValue{Name: rec.List}}
	}
	if rec.URL != "" {
		props[propURL] = property{URL: rec.URL}
	}
	status := statusNotDone
	if rec.Done {
		status = statusDone
	}
	props[propDone] = property{Status: &selectValue{Name: status}}
	return props
}
