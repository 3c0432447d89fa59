package courseinfo

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edbridge/annolti/internal/db"
)

func newCourseStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewStore(dbh)
}

func TestUpsertGroupInfoRefreshesRow(t *testing.T) {
	s := newCourseStore(t)
	ctx := context.Background()

	gi := GroupInfo{
		AuthorityProvidedID:      "apid-1",
		ConsumerKey:              "key-1",
		ContextID:                "c-1",
		ContextTitle:             "Biology 101",
		ToolConsumerInstanceGUID: "guid-1",
	}
	require.NoError(t, s.UpsertGroupInfo(ctx, gi))

	gi.ContextTitle = "Biology 102"
	require.NoError(t, s.UpsertGroupInfo(ctx, gi))

	var count int
	var title string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(context_title) FROM group_infos WHERE authority_provided_id=$1`,
		"apid-1").Scan(&count, &title))
	assert.Equal(t, 1, count, "one row per course")
	assert.Equal(t, "Biology 102", title)
}

func TestRecordLaunchAppends(t *testing.T) {
	s := newCourseStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordLaunch(ctx, "c-1", "key-1"))
	require.NoError(t, s.RecordLaunch(ctx, "c-1", "key-1"))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lti_launches WHERE context_id=$1`, "c-1").Scan(&count))
	assert.Equal(t, 2, count)
}
