// Package dav talks WebDAV to CalDAV and CardDAV collections: enumeration
// via PROPFIND, resource bodies via GET, and etag-guarded PUT/DELETE. The
// task and contact adapters share this client and differ only in codec.
package dav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cookkie03/davsync/pkg/retry"
)

// Client is a minimal WebDAV client for a single collection.
type Client struct {
	HTTP     *http.Client
	BaseURL  string // collection URL, trailing slash optional
	Username string
	Password string
}

// NewClient returns a client for the collection at baseURL using HTTP
// basic auth.
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		BaseURL:  strings.TrimRight(baseURL, "/") + "/",
		Username: username,
		Password: password,
	}
}

// Resource is one member of the collection as reported by PROPFIND.
type Resource struct {
	Href string
	ETag string
}

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string  `xml:"status"`
	Prop   davProp `xml:"prop"`
}

type davProp struct {
	ETag         string       `xml:"getetag"`
	ResourceType resourcetype `xml:"resourcetype"`
}

type resourcetype struct {
	Collection  *struct{} `xml:"collection"`
	Addressbook *struct{} `xml:"urn:ietf:params:xml:ns:carddav addressbook"`
	Calendar    *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:getetag/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>`

// List enumerates the collection's member resources with their etags. The
// collection itself and any nested collections are skipped.
func (c *Client) List(ctx context.Context) ([]Resource, error) {
	resp, err := c.do(ctx, "PROPFIND", c.BaseURL, []byte(propfindBody), map[string]string{
		"Depth":        "1",
		"Content-Type": "application/xml; charset=utf-8",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, "PROPFIND", c.BaseURL); err != nil {
		return nil, err
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("parsing multistatus from %s: %w", c.BaseURL, err)
	}

	var out []Resource
	for _, r := range ms.Responses {
		res, ok := memberResource(r)
		if ok {
			out = append(out, res)
		}
	}
	return out, nil
}

func memberResource(r davResponse) (Resource, bool) {
	for _, ps := range r.Propstats {
		if !strings.Contains(ps.Status, "200") {
			continue
		}
		if ps.Prop.ResourceType.Collection != nil {
			return Resource{}, false
		}
		return Resource{Href: r.Href, ETag: normalizeETag(ps.Prop.ETag)}, true
	}
	return Resource{}, false
}

// Get fetches a resource body and its etag.
func (c *Client) Get(ctx context.Context, href string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.resolve(href), nil, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, "GET", href); err != nil {
		return nil, "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", href, err)
	}
	return body, etagOf(resp), nil
}

// Put writes a resource. A non-empty ifMatch makes the write conditional
// on the current etag; an empty ifMatch asserts the resource must not
// exist yet (If-None-Match: *). Returns the resource's new etag.
func (c *Client) Put(ctx context.Context, href string, body []byte, contentType, ifMatch string) (string, error) {
	headers := map[string]string{"Content-Type": contentType}
	if ifMatch != "" {
		headers["If-Match"] = `"` + strings.Trim(ifMatch, `"`) + `"`
	} else {
		headers["If-None-Match"] = "*"
	}
	resp, err := c.do(ctx, http.MethodPut, c.resolve(href), body, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, "PUT", href); err != nil {
		return "", err
	}

	etag := etagOf(resp)
	if etag == "" {
		// Some servers omit the ETag on PUT; re-read it.
		return c.fetchETag(ctx, href)
	}
	return etag, nil
}

// Delete removes a resource. 404 is treated as success: the record being
// gone is the goal.
func (c *Client) Delete(ctx context.Context, href string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.resolve(href), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return classifyStatus(resp, "DELETE", href)
}

func (c *Client) fetchETag(ctx context.Context, href string) (string, error) {
	_, etag, err := c.Get(ctx, href)
	if err != nil {
		return "", fmt.Errorf("reading etag after write: %w", err)
	}
	return etag, nil
}

// resolve turns a multistatus href (usually server-absolute) into a full URL.
func (c *Client) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func (c *Client) do(ctx context.Context, method, fullURL string, body []byte, headers map[string]string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, rd)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, fullURL, err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, fullURL, err)
	}
	return resp, nil
}

func etagOf(resp *http.Response) string {
	return normalizeETag(resp.Header.Get("ETag"))
}

// normalizeETag strips the weak-validator prefix and surrounding quotes so
// tokens compare stably across PROPFIND and header forms.
func normalizeETag(s string) string {
	s = strings.TrimPrefix(s, "W/")
	return strings.Trim(s, `"`)
}

// classifyStatus maps HTTP failures onto the retry sentinels: 412 is a
// precondition failure, other 4xx (except throttling and timeouts) are
// permanent, everything else is transient.
func classifyStatus(resp *http.Response, method, href string) error {
	if resp.StatusCode < 400 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	err := fmt.Errorf("%s %s: %s: %s", method, href, resp.Status, strings.TrimSpace(string(snippet)))
	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		return retry.Precondition(err)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return err
	default:
		return retry.Permanent(err)
	}
}
