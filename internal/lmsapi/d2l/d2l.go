// Package d2l wraps the Brightspace (D2L) operations the tool uses.
package d2l

import (
	"context"
	"fmt"
	"net/http"

	"github.com/edbridge/annolti/internal/lmsapi"
)

type Client struct {
	API *lmsapi.Client
}

type File struct {
	ID          int64  `json:"Id"`
	DisplayName string `json:"Title"`
	UpdatedAt   string `json:"LastModifiedDate"`
}

func (f File) Validate() error {
	if f.ID == 0 {
		return fmt.Errorf("file missing Id")
	}
	return nil
}

type Files []File

func (fs Files) Validate() error {
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ListFiles returns the course's content topics that are files.
func (c *Client) ListFiles(ctx context.Context, courseID string) ([]File, error) {
	var files Files
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("d2l/api/le/1.51/%s/content/toc", courseID),
		Many:   true,
	}, &files)
	return files, err
}

// FileURL builds the content-stream URL served behind the user's token.
func (c *Client) FileURL(ctx context.Context, courseID, fileID string) (string, error) {
	// D2L serves the bytes directly rather than minting a public URL;
	// probing with a metadata GET confirms the topic still resolves.
	var topic struct {
		ID int64 `json:"Id"`
	}
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("d2l/api/le/1.51/%s/content/topics/%s", courseID, fileID),
	}, &topic)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/d2l/api/le/1.51/%s/content/topics/%s/file", c.API.BaseURL, courseID, fileID), nil
}
