// Package onedrive wraps the Microsoft Graph calls used to resolve a
// OneDrive file picked in the content picker.
package onedrive

import (
	"context"
	"fmt"
	"net/http"

	"github.com/edbridge/annolti/internal/lmsapi"
)

type Client struct {
	API *lmsapi.Client
}

// DownloadURL resolves the short-lived pre-authenticated download URL for
// a shared drive item. Minted on every launch; Graph expires these within
// the hour.
func (c *Client) DownloadURL(ctx context.Context, driveID, itemID string) (string, error) {
	var out struct {
		DownloadURL string `json:"@microsoft.graph.downloadUrl"`
	}
	err := c.API.Do(ctx, lmsapi.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("v1.0/drives/%s/items/%s", driveID, itemID),
	}, &out)
	if err != nil {
		return "", err
	}
	if out.DownloadURL == "" {
		return "", fmt.Errorf("onedrive: no download url for item %s", itemID)
	}
	return out.DownloadURL, nil
}
