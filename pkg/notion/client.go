// Package notion adapts one Notion database to the engine's Adapter
// surface. Pages are records; the database schema mirrors the task model
// (Name title, UID rich text anchor, Due date, Priority select, Done
// status). Notion has no conditional writes, so update preconditions are
// emulated by re-reading last_edited_time before each PATCH.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cookkie03/davsync/pkg/retry"
)

const (
	defaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"
)

// Database is the adapter for one Notion database.
type Database struct {
	HTTP       *http.Client
	BaseURL    string
	Token      string
	DatabaseID string
}

func NewDatabase(token, databaseID string) *Database {
	return &Database{
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		BaseURL:    defaultBaseURL,
		Token:      token,
		DatabaseID: databaseID,
	}
}

func (d *Database) Name() string { return "notion" }

type queryRequest struct {
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size"`
}

type queryResponse struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

func (d *Database) queryPages(ctx context.Context) ([]page, error) {
	var pages []page
	cursor := ""
	for {
		var resp queryResponse
		err := d.call(ctx, http.MethodPost,
			fmt.Sprintf("/v1/databases/%s/query", d.DatabaseID),
			queryRequest{StartCursor: cursor, PageSize: 100}, &resp)
		if err != nil {
			return nil, fmt.Errorf("querying database %s: %w", d.DatabaseID, err)
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}

func (d *Database) getPage(ctx context.Context, pageID string) (*page, error) {
	var p page
	if err := d.call(ctx, http.MethodGet, "/v1/pages/"+pageID, nil, &p); err != nil {
		return nil, fmt.Errorf("reading page %s: %w", pageID, err)
	}
	return &p, nil
}

func (d *Database) patchPage(ctx context.Context, pageID string, body any) (*page, error) {
	var p page
	if err := d.call(ctx, http.MethodPatch, "/v1/pages/"+pageID, body, &p); err != nil {
		return nil, fmt.Errorf("updating page %s: %w", pageID, err)
	}
	return &p, nil
}

// call issues one API request and decodes the response into out.
func (d *Database) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+d.Token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp, method, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// classifyStatus maps API failures onto the retry sentinels. Notion rate
// limits with 429; conflicts (409) happen when two writers race on a page
// and resolve themselves on retry.
func classifyStatus(resp *http.Response, method, path string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(snippet)))
	switch {
	case resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return err
	default:
		return retry.Permanent(err)
	}
}
