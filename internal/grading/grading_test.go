package grading

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edbridge/annolti/internal/db"
	"github.com/edbridge/annolti/internal/hapi"
	"github.com/edbridge/annolti/internal/lti"
)

func newGradingStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewStore(dbh)
}

func studentLaunch() (lti.User, lti.LaunchParams) {
	u := lti.User{
		UserID:           "student-1",
		OAuthConsumerKey: "key-1",
		Roles:            "Learner",
	}
	p := lti.LaunchParams{
		OAuthConsumerKey:     "key-1",
		UserID:               "student-1",
		Roles:                "Learner",
		ContextID:            "c-1",
		ResourceLinkID:       "rl-1",
		LISResultSourcedID:   "sourced-1",
		LISOutcomeServiceURL: "https://lms.example.com/grades",
		ProductFamilyCode:    "moodle",
	}
	return u, p
}

func TestAllowedProducts(t *testing.T) {
	assert.True(t, Allowed("moodle"))
	assert.True(t, Allowed("BlackboardLearn"))
	assert.False(t, Allowed("canvas"))
	assert.False(t, Allowed("desire2learn"))
	assert.False(t, Allowed(""))
}

func TestRecorderRecordsStudent(t *testing.T) {
	store := newGradingStore(t)
	rec := &Recorder{Store: store}
	u, p := studentLaunch()
	hu := hapi.HUser{Username: "abc123", DisplayName: "Student One"}

	recorded, err := rec.Record(context.Background(), u, p, hu)
	require.NoError(t, err)
	assert.True(t, recorded)

	students, err := store.ListStudents(context.Background(), "key-1", "c-1", "rl-1")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "abc123", students[0].UserID)
	assert.Equal(t, "Student One", students[0].DisplayName)
	assert.Equal(t, "sourced-1", students[0].LISResultSourcedID)
	assert.Equal(t, "https://lms.example.com/grades", students[0].LISOutcomeServiceURL)
}

func TestRecorderSkipsInstructors(t *testing.T) {
	rec := &Recorder{Store: newGradingStore(t)}
	u, p := studentLaunch()
	u.Roles = "Instructor"

	recorded, err := rec.Record(context.Background(), u, p, hapi.HUser{Username: "abc"})
	require.NoError(t, err)
	assert.False(t, recorded)
}

func TestRecorderSkipsMissingLISFields(t *testing.T) {
	rec := &Recorder{Store: newGradingStore(t)}
	u, p := studentLaunch()

	noSourced := p
	noSourced.LISResultSourcedID = ""
	recorded, err := rec.Record(context.Background(), u, noSourced, hapi.HUser{Username: "abc"})
	require.NoError(t, err)
	assert.False(t, recorded)

	noService := p
	noService.LISOutcomeServiceURL = ""
	recorded, err = rec.Record(context.Background(), u, noService, hapi.HUser{Username: "abc"})
	require.NoError(t, err)
	assert.False(t, recorded)
}

func TestRecorderSkipsDisallowedProducts(t *testing.T) {
	rec := &Recorder{Store: newGradingStore(t)}
	u, p := studentLaunch()
	p.ProductFamilyCode = "canvas"

	recorded, err := rec.Record(context.Background(), u, p, hapi.HUser{Username: "abc"})
	require.NoError(t, err)
	assert.False(t, recorded)
}

func TestUpsertReplacesRow(t *testing.T) {
	store := newGradingStore(t)
	rec := &Recorder{Store: store}
	u, p := studentLaunch()
	ctx := context.Background()

	_, err := rec.Record(ctx, u, p, hapi.HUser{Username: "abc", DisplayName: "Before"})
	require.NoError(t, err)

	p.LISResultSourcedID = "sourced-2"
	_, err = rec.Record(ctx, u, p, hapi.HUser{Username: "abc", DisplayName: "After"})
	require.NoError(t, err)

	students, err := store.ListStudents(ctx, "key-1", "c-1", "rl-1")
	require.NoError(t, err)
	require.Len(t, students, 1, "relaunch must not duplicate the row")
	assert.Equal(t, "sourced-2", students[0].LISResultSourcedID)
	assert.Equal(t, "After", students[0].DisplayName)
}

func TestListStudentsScopedToAssignment(t *testing.T) {
	store := newGradingStore(t)
	ctx := context.Background()
	for i, rl := range []string{"rl-1", "rl-1", "rl-2"} {
		require.NoError(t, store.Upsert(ctx, Info{
			ConsumerKey:          "key-1",
			UserID:               fmt.Sprintf("student-%d", i),
			ContextID:            "c-1",
			ResourceLinkID:       rl,
			LISResultSourcedID:   "s",
			LISOutcomeServiceURL: "u",
			HUsername:            fmt.Sprintf("h-%d", i),
		}))
	}

	students, err := store.ListStudents(ctx, "key-1", "c-1", "rl-1")
	require.NoError(t, err)
	assert.Len(t, students, 2)
}
