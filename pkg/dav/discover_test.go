package dav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// davHome serves a PROPFIND listing of a principal home containing typed
// child collections, the shape discovery has to navigate.
func davHome(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(207)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	u.Path = "/dav/home/"
	return NewClient(u.String(), "user", "secret")
}

const homeMultistatus = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:response><d:href>/dav/home/</d:href><d:propstat><d:status>HTTP/1.1 200 OK</d:status><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop></d:propstat></d:response>
  <d:response><d:href>/dav/home/journal/</d:href><d:propstat><d:status>HTTP/1.1 200 OK</d:status><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop></d:propstat></d:response>
  <d:response><d:href>/dav/home/contacts/</d:href><d:propstat><d:status>HTTP/1.1 200 OK</d:status><d:prop><d:resourcetype><d:collection/><card:addressbook/></d:resourcetype></d:prop></d:propstat></d:response>
  <d:response><d:href>/dav/home/tasks/</d:href><d:propstat><d:status>HTTP/1.1 200 OK</d:status><d:prop><d:resourcetype><d:collection/><cal:calendar/></d:resourcetype></d:prop></d:propstat></d:response>
</d:multistatus>`

func TestDiscoverFindsAddressbook(t *testing.T) {
	c := davHome(t, homeMultistatus)
	base := c.Discover(context.Background(), KindAddressbook)
	if got := mustPath(t, base); got != "/dav/home/contacts/" {
		t.Errorf("discovered %q, want /dav/home/contacts/", got)
	}
	if c.BaseURL != base {
		t.Errorf("client not re-rooted: %q vs %q", c.BaseURL, base)
	}
}

func TestDiscoverFindsCalendar(t *testing.T) {
	c := davHome(t, homeMultistatus)
	base := c.Discover(context.Background(), KindCalendar)
	if got := mustPath(t, base); got != "/dav/home/tasks/" {
		t.Errorf("discovered %q, want /dav/home/tasks/", got)
	}
}

func TestDiscoverKeepsConfiguredURLWithoutMatch(t *testing.T) {
	const plain = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response><d:href>/dav/home/</d:href><d:propstat><d:status>HTTP/1.1 200 OK</d:status><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop></d:propstat></d:response>
  <d:response><d:href>/dav/home/item.vcf</d:href><d:propstat><d:status>HTTP/1.1 200 OK</d:status><d:prop><d:resourcetype/></d:prop></d:propstat></d:response>
</d:multistatus>`
	c := davHome(t, plain)
	want := c.BaseURL
	if got := c.Discover(context.Background(), KindAddressbook); got != want {
		t.Errorf("Discover = %q, want configured %q", got, want)
	}
}

func TestDiscoverToleratesRefusedPropfind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/dav/contacts/", "user", "secret")
	want := c.BaseURL
	if got := c.Discover(context.Background(), KindAddressbook); got != want {
		t.Errorf("Discover = %q, want configured %q", got, want)
	}
}

func mustPath(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Path
}
