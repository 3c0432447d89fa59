package onedrive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edbridge/annolti/internal/db"
	"github.com/edbridge/annolti/internal/lmsapi"
	"github.com/edbridge/annolti/internal/lmsoauth"
)

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	tokens := lmsoauth.NewStore(dbh)
	require.NoError(t, tokens.Save(context.Background(), "key-1", "u-1", "tok-1", "", 3600))

	return &Client{API: &lmsapi.Client{
		HTTP:        srv.Client(),
		BaseURL:     srv.URL,
		Tokens:      tokens,
		ConsumerKey: "key-1",
		UserID:      "u-1",
	}}
}

func TestDownloadURL(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/drives/d-1/items/i-1", r.URL.Path)
		w.Write([]byte(`{"@microsoft.graph.downloadUrl":"https://graph.example.com/tmp/i-1"}`))
	}))

	u, err := c.DownloadURL(context.Background(), "d-1", "i-1")
	require.NoError(t, err)
	assert.Equal(t, "https://graph.example.com/tmp/i-1", u)
}

func TestDownloadURLMissing(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"i-1"}`))
	}))
	_, err := c.DownloadURL(context.Background(), "d-1", "i-1")
	assert.Error(t, err)
}
