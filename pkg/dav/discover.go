package dav

import (
	"context"
	"encoding/xml"
	"strings"
)

// CollectionKind names the DAV collection flavor Discover looks for.
type CollectionKind string

const (
	KindCalendar    CollectionKind = "calendar"
	KindAddressbook CollectionKind = "addressbook"
)

// Discover probes the configured URL with a Depth 1 PROPFIND and, when a
// child collection of the wanted kind is found, re-roots the client at it.
// URLs that already point at the collection, servers that refuse the
// PROPFIND, and homes without a matching child all leave the client on the
// configured URL.
func (c *Client) Discover(ctx context.Context, kind CollectionKind) string {
	resp, err := c.do(ctx, "PROPFIND", c.BaseURL, []byte(propfindBody), map[string]string{
		"Depth":        "1",
		"Content-Type": "application/xml; charset=utf-8",
	})
	if err != nil {
		return c.BaseURL
	}
	defer resp.Body.Close()
	if classifyStatus(resp, "PROPFIND", c.BaseURL) != nil {
		return c.BaseURL
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return c.BaseURL
	}

	base := strings.TrimRight(c.BaseURL, "/") + "/"
	for _, r := range ms.Responses {
		rt, ok := collectionType(r)
		if !ok {
			continue
		}
		if strings.TrimRight(c.resolve(r.Href), "/")+"/" == base {
			// The configured URL itself; keep looking for children.
			continue
		}
		if (kind == KindCalendar && rt.Calendar != nil) ||
			(kind == KindAddressbook && rt.Addressbook != nil) {
			c.BaseURL = strings.TrimRight(c.resolve(r.Href), "/") + "/"
			break
		}
	}
	return c.BaseURL
}

func collectionType(r davResponse) (resourcetype, bool) {
	for _, ps := range r.Propstats {
		if !strings.Contains(ps.Status, "200") {
			continue
		}
		if ps.Prop.ResourceType.Collection == nil {
			return resourcetype{}, false
		}
		return ps.Prop.ResourceType, true
	}
	return resourcetype{}, false
}
