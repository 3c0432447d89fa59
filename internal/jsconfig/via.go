package jsconfig

import (
	"net/url"
	"strings"
)

// ViaURL wraps a document URL in the Via proxy with the client's standard
// knobs. The overrides set here win over any duplicate via.* keys riding
// inside the document URL's own query, because they are distinct top-level
// parameters of the Via request.
func ViaURL(viaBase, docURL, frameHost string) (string, error) {
	base, err := url.Parse(viaBase)
	if err != nil {
		return "", err
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + viaRoute(docURL)

	q := base.Query()
	q.Set("url", docURL)
	q.Set("via.open_sidebar", "1")
	q.Set("via.request_config_from_frame", frameHost)
	q.Set("via.external_link_mode", "new-tab")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// viaRoute picks the Via route for the document: PDFs that Via can only
// proxy raw (Google Drive direct downloads) go to /pdf, everything else to
// the general /route.
func viaRoute(docURL string) string {
	if isGoogleDriveDownload(docURL) {
		return "/pdf"
	}
	return "/route"
}

func isGoogleDriveDownload(docURL string) bool {
	u, err := url.Parse(docURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "drive.google.com" && host != "docs.google.com" {
		return false
	}
	return strings.Contains(u.Path, "/uc") && u.Query().Get("export") == "download"
}
