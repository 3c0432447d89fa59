// Package canvas names the Canvas API operations the tool uses, on top of
// the lmsapi core client.
package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/lmsapi"
)

type Client struct {
	API *lmsapi.Client
}

// File is one attachment row from the Canvas files API.
type File struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	UpdatedAt   string `json:"updated_at"`
	Size        int64  `json:"size"`
}

func (f File) Validate() error {
	if f.ID == 0 {
		return fmt.Errorf("file missing id")
	}
	if f.DisplayName == "" {
		return fmt.Errorf("file %d missing display_name", f.ID)
	}
	return nil
}

// Files validates every element of a list response.
type Files []File

func (fs Files) Validate() error {
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ListFiles returns the course's PDFs, paginated to completion.
func (c *Client) ListFiles(ctx context.Context, courseID string) ([]File, error) {
	params := url.Values{}
	params.Set("content_types[]", "application/pdf")
	params.Set("sort", "position")
	var files Files
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("courses/%s/files", courseID),
		Params: params,
		Many:   true,
	}, &files)
	return files, err
}

// PublicURL mints a temporary download URL for a file. The URL is
// short-lived, so this is called on every launch rather than stored.
func (c *Client) PublicURL(ctx context.Context, fileID string) (string, error) {
	var out struct {
		PublicURL string `json:"public_url"`
	}
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("files/%s/public_url", fileID),
	}, &out)
	if err != nil {
		return "", err
	}
	if out.PublicURL == "" {
		return "", fmt.Errorf("canvas: empty public_url for file %s", fileID)
	}
	return out.PublicURL, nil
}

// Page is a Canvas wiki page; Body is only set by the single-page call.
type Page struct {
	ID        int64  `json:"page_id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
	Body      string `json:"body,omitempty"`
}

func (p Page) Validate() error {
	if p.ID == 0 {
		return fmt.Errorf("page missing page_id")
	}
	return nil
}

type Pages []Page

func (ps Pages) Validate() error {
	for _, p := range ps {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ListPages returns the course's published wiki pages.
func (c *Client) ListPages(ctx context.Context, courseID string) ([]Page, error) {
	params := url.Values{}
	params.Set("published", "1")
	var pages Pages
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("courses/%s/pages", courseID),
		Params: params,
		Many:   true,
	}, &pages)
	return pages, err
}

// Page fetches one wiki page including its rendered body.
func (c *Client) Page(ctx context.Context, courseID, pageID string) (Page, error) {
	var page Page
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("courses/%s/pages/%s", courseID, pageID),
	}, &page)
	if lmsapi.IsNotFound(err) {
		return Page{}, fmt.Errorf("%w: page %s in course %s", errorx.ErrCanvasPageNotFound, pageID, courseID)
	}
	return page, err
}

type Section struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SectionsOfCourseForUser lists the sections embedded in the course
// response. Canvas exposes no direct "user's sections" endpoint, so the
// course endpoint with include[]=sections is the established route.
func (c *Client) SectionsOfCourseForUser(ctx context.Context, courseID, userID string) ([]Section, error) {
	params := url.Values{}
	params.Set("include[]", "sections")
	var course struct {
		ID       int64     `json:"id"`
		Sections []Section `json:"sections"`
	}
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("users/%s/courses/%s", userID, courseID),
		Params: params,
	}, &course)
	return course.Sections, err
}

// FindMatchingFile implements the course-copy heuristic's selection rule:
// among files whose display name matches, pick the most recently updated.
// Deterministic for a fixed file list.
func FindMatchingFile(files []File, displayName string) (File, bool) {
	matches := make([]File, 0, 1)
	for _, f := range files {
		if f.DisplayName == displayName {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return File{}, false
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].UpdatedAt != matches[j].UpdatedAt {
			return matches[i].UpdatedAt > matches[j].UpdatedAt // RFC3339 sorts lexically
		}
		return matches[i].ID > matches[j].ID
	})
	return matches[0], true
}

// Is401Body matches Canvas's habit of reporting a dead token in the body.
func Is401Body(status int, body []byte) bool {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return false
	}
	return strings.Contains(string(body), "Invalid access token") ||
		strings.Contains(string(body), "Bearer token is invalid")
}
