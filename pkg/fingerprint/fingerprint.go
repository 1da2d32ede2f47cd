// Package fingerprint derives deterministic natural keys from a record's
// identity fields. Fingerprints bootstrap a link when no durable
// cross-system identifier exists yet; once linked, a record is never
// fingerprint-matched again.
//
// The pipe-joined scheme is load-bearing: existing link state stores carry
// fingerprints in exactly this format, so any change needs a version bump
// and a migration.
package fingerprint

import (
	"sort"
	"strings"

	"github.com/cookkie03/davsync/pkg/model"
)

// Contact builds the contact-domain fingerprint: lower-cased trimmed name,
// lowest-sorting email, lowest-sorting normalized phone, joined by pipes.
// "Lowest" is for determinism, not semantic priority. Returns "" when no
// identity field is populated; empty fingerprints must never be matched on.
func Contact(name string, emails, phones []string) string {
	n := strings.ToLower(strings.TrimSpace(name))

	var es []string
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			es = append(es, e)
		}
	}
	sort.Strings(es)

	var ps []string
	for _, p := range phones {
		if p = NormalizePhone(p); p != "" {
			ps = append(ps, p)
		}
	}
	sort.Strings(ps)

	email, phone := "", ""
	if len(es) > 0 {
		email = es[0]
	}
	if len(ps) > 0 {
		phone = ps[0]
	}
	if n == "" && email == "" && phone == "" {
		return ""
	}
	return n + "|" + email + "|" + phone
}

// Task builds the task-domain fingerprint from the title and the normalized
// due date. Returns "" for untitled records.
func Task(title string, due *model.Date) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return ""
	}
	d := ""
	if due != nil {
		d = due.String()
	}
	return t + "|" + d
}

// NormalizePhone strips everything except digits and '+' so that
// "+39 055 123-456" and "+39055123456" compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
