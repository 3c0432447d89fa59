// Package moodle wraps the Moodle web-service functions the tool uses.
package moodle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/edbridge/annolti/internal/lmsapi"
)

type Client struct {
	API *lmsapi.Client
}

type Page struct {
	ID        int64  `json:"id"`
	Title     string `json:"name"`
	UpdatedAt int64  `json:"timemodified"`
	Body      string `json:"content,omitempty"`
}

func (p Page) Validate() error {
	if p.ID == 0 {
		return fmt.Errorf("page missing id")
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

// ListPages returns the course's page resources.
func (c *Client) ListPages(ctx context.Context, courseID string) ([]Page, error) {
	params := url.Values{}
	params.Set("wsfunction", "mod_page_get_pages_by_courses")
	params.Set("courseids[0]", courseID)
	var out struct {
		Pages Pages `json:"pages"`
	}
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   "webservice/rest/server.php",
		Params: params,
	}, &out)
	if err != nil {
		return nil, err
	}
	if err := out.Pages.Validate(); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

// Page fetches a single page and rewrites its asset URLs for the browser.
func (c *Client) Page(ctx context.Context, courseID, pageID string) (Page, error) {
	pages, err := c.ListPages(ctx, courseID)
	if err != nil {
		return Page{}, err
	}
	for _, p := range pages {
		if fmt.Sprint(p.ID) == pageID {
			p.Body = RewritePluginfileURLs(p.Body)
			return p, nil
		}
	}
	return Page{}, fmt.Errorf("moodle: page %s not found in course %s", pageID, courseID)
}

// RewritePluginfileURLs rewrites webservice asset URLs to their
// cookie-authenticated form so embedded images and files resolve in the
// user's browser session:
// .../webservice/pluginfile.php/... -> .../pluginfile.php/...
func RewritePluginfileURLs(body string) string {
	return strings.ReplaceAll(body, "/webservice/pluginfile.php/", "/pluginfile.php/")
}
