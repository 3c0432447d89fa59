// Package blackboard wraps the Blackboard Learn REST operations the tool
// uses.
package blackboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/edbridge/annolti/internal/lmsapi"
)

type Client struct {
	API *lmsapi.Client
}

type File struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	UpdatedAt   string `json:"modified"`
}

func (f File) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("file missing id")
	}
	return nil
}

type files []File

func (fs files) Validate() error {
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ListFiles returns the course content entries that are files.
func (c *Client) ListFiles(ctx context.Context, courseID string) ([]File, error) {
	params := url.Values{}
	params.Set("contentHandler", "resource/x-bb-file")
	var out struct {
		Results files `json:"results"`
	}
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("learn/api/public/v1/courses/%s/resources", courseID),
		Params: params,
	}, &out)
	if err != nil {
		return nil, err
	}
	if err := out.Results.Validate(); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// DownloadURL resolves the temporary download location for a file. The URL
// expires, so it is minted on every launch.
func (c *Client) DownloadURL(ctx context.Context, courseID, fileID string) (string, error) {
	var out struct {
		DownloadURL string `json:"downloadUrl"`
	}
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("learn/api/public/v1/courses/%s/resources/%s/download", courseID, fileID),
	}, &out)
	if err != nil {
		return "", err
	}
	if out.DownloadURL == "" {
		return "", fmt.Errorf("blackboard: empty downloadUrl for file %s", fileID)
	}
	return out.DownloadURL, nil
}
