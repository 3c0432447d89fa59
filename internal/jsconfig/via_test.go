package jsconfig

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViaURLRoutesThroughVia(t *testing.T) {
	got, err := ViaURL("https://via.example.com", "https://school.edu/doc.pdf", "tool.example.com")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "via.example.com", u.Host)
	assert.Equal(t, "/route", u.Path)
	q := u.Query()
	assert.Equal(t, "https://school.edu/doc.pdf", q.Get("url"))
	assert.Equal(t, "1", q.Get("via.open_sidebar"))
	assert.Equal(t, "tool.example.com", q.Get("via.request_config_from_frame"))
	assert.Equal(t, "new-tab", q.Get("via.external_link_mode"))
}

func TestViaURLGoogleDriveUsesPDFRoute(t *testing.T) {
	doc := "https://drive.google.com/uc?id=abc&export=download"
	got, err := ViaURL("https://via.example.com", doc, "tool.example.com")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/pdf", u.Path)
	assert.Equal(t, doc, u.Query().Get("url"))
}

func TestViaURLGoogleDriveDetection(t *testing.T) {
	cases := []struct {
		doc string
		pdf bool
	}{
		{"https://drive.google.com/uc?id=abc&export=download", true},
		{"https://docs.google.com/uc?id=abc&export=download", true},
		{"https://drive.google.com/uc?id=abc", false},
		{"https://drive.google.com/file/d/abc/view", false},
		{"https://evil.example.com/uc?export=download", false},
		{"https://school.edu/doc.pdf", false},
	}
	for _, c := range cases {
		got, err := ViaURL("https://via.example.com", c.doc, "h")
		require.NoError(t, err)
		u, err := url.Parse(got)
		require.NoError(t, err)
		if c.pdf {
			assert.Equal(t, "/pdf", u.Path, "doc %s", c.doc)
		} else {
			assert.Equal(t, "/route", u.Path, "doc %s", c.doc)
		}
	}
}

func TestViaURLOverridesWinOverEmbeddedParams(t *testing.T) {
	// The document's own via.* params ride inside the url value and must not
	// displace the top-level overrides.
	doc := "https://school.edu/doc.pdf?via.open_sidebar=0"
	got, err := ViaURL("https://via.example.com", doc, "tool.example.com")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "1", u.Query().Get("via.open_sidebar"))
	assert.Equal(t, doc, u.Query().Get("url"))
}

func TestViaURLTrailingSlashBase(t *testing.T) {
	got, err := ViaURL("https://via.example.com/", "https://school.edu/doc.pdf", "h")
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/route", u.Path)
}
