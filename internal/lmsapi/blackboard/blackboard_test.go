package blackboard

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

func TestListFiles(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/learn/api/public/v1/courses/c-1/resources", r.URL.Path)
		assert.Equal(t, "resource/x-bb-file", r.URL.Query().Get("contentHandler"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"results":[{"id":"_1_1","name":"reading.pdf","modified":"2025-01-01T00:00:00Z"}]}`))
	}))

	files, err := c.ListFiles(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "_1_1", files[0].ID)
	assert.Equal(t, "reading.pdf", files[0].DisplayName)
}

func TestListFilesRejectsMissingID(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"name":"no-id.pdf"}]}`))
	}))
	_, err := c.ListFiles(context.Background(), "c-1")
	assert.Error(t, err)
}

func TestDownloadURL(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/learn/api/public/v1/courses/c-1/resources/_1_1/download", r.URL.Path)
		w.Write([]byte(`{"downloadUrl":"https://bb.example.com/tmp/reading.pdf"}`))
	}))

	u, err := c.DownloadURL(context.Background(), "c-1", "_1_1")
	require.NoError(t, err)
	assert.Equal(t, "https://bb.example.com/tmp/reading.pdf", u)
}

func TestDownloadURLEmpty(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	_, err := c.DownloadURL(context.Background(), "c-1", "_1_1")
	assert.Error(t, err)
}
