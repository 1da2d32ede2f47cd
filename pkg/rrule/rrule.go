// Package rrule computes the next scheduled occurrence of a recurrence
// rule. It exists so that completing a recurring task never writes a
// terminal done state to the calendar side: the due date advances instead.
package rrule

import (
	"fmt"
	"log"

	rr "github.com/teambition/rrule-go"

	"github.com/cookkie03/davsync/pkg/model"
)

// Next returns the first occurrence of rule strictly after from.
func Next(rule string, from model.Date) (model.Date, error) {
	opts, err := rr.StrToROption(rule)
	if err != nil {
		return model.Date{}, fmt.Errorf("parsing rrule %q: %w", rule, err)
	}
	opts.Dtstart = from.Time()
	r, err := rr.NewRRule(*opts)
	if err != nil {
		return model.Date{}, fmt.Errorf("building rrule %q: %w", rule, err)
	}
	nxt := r.After(from.Time(), false)
	if nxt.IsZero() {
		return model.Date{}, fmt.Errorf("rrule %q has no occurrence after %s", rule, from)
	}
	return model.DateOf(nxt), nil
}

// Advance returns the next occurrence after from, or from+1 day when the
// rule is exhausted or unparsable. The fallback keeps the task moving
// instead of blocking the run; ok is false so callers can log a warning.
func Advance(rule string, from model.Date) (next model.Date, ok bool) {
	d, err := Next(rule, from)
	if err != nil {
		log.Printf("[rrule] %v, advancing due date by one day", err)
		return model.DateOf(from.Time().AddDate(0, 0, 1)), false
	}
	return d, true
}
