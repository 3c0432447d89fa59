package d2l

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
		assert.Equal(t, "/d2l/api/le/1.51/c-1/content/toc", r.URL.Path)
		w.Write([]byte(`[{"Id":7,"Title":"reading.pdf","LastModifiedDate":"2025-01-01T00:00:00Z"}]`))
	}))

	files, err := c.ListFiles(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(7), files[0].ID)
	assert.Equal(t, "reading.pdf", files[0].DisplayName)
}

func TestFileURL(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/d2l/api/le/1.51/c-1/content/topics/7", r.URL.Path)
		w.Write([]byte(`{"Id":7}`))
	}))

	u, err := c.FileURL(context.Background(), "c-1", "7")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, "/d2l/api/le/1.51/c-1/content/topics/7/file"), u)
}

func TestFileURLMissingTopic(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	_, err := c.FileURL(context.Background(), "c-1", "7")
	assert.Error(t, err)
}
