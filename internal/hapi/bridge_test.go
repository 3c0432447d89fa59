package hapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/lti"
)

// fakeH is a minimal in-memory H API: users and groups keyed by id,
// conflict and not-found semantics matching the real service.
type fakeH struct {
	t       *testing.T
	users   map[string]bool
	groups  map[string]string // groupID -> name
	members map[string][]string

	createGroupForwardedUser string
}

func newFakeH(t *testing.T) *fakeH {
	return &fakeH{
		t:       t,
		users:   make(map[string]bool),
		groups:  make(map[string]string),
		members: make(map[string][]string),
	}
}

func (f *fakeH) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "client-id" || pass != "client-secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case r.Method == http.MethodPost && path == "/users":
		var body struct {
			Username string `json:"username"`
		}
		decodeJSON(f.t, r, &body)
		if f.users[body.Username] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.users[body.Username] = true
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/groups/"):
		id := strings.TrimPrefix(path, "/groups/")
		if _, ok := f.groups[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		decodeJSON(f.t, r, &body)
		f.groups[id] = body.Name
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPost && path == "/groups":
		f.createGroupForwardedUser = r.Header.Get("X-Forwarded-User")
		var body struct {
			Name    string `json:"name"`
			GroupID string `json:"groupid"`
		}
		decodeJSON(f.t, r, &body)
		f.groups[body.GroupID] = body.Name
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPost && strings.Contains(path, "/members/"):
		parts := strings.SplitN(strings.TrimPrefix(path, "/groups/"), "/members/", 2)
		for _, m := range f.members[parts[0]] {
			if m == parts[1] {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		f.members[parts[0]] = append(f.members[parts[0]], parts[1])
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func decodeJSON(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(out))
}

func newTestBridge(t *testing.T) (*Bridge, *fakeH) {
	t.Helper()
	fake := newFakeH(t)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL+"/api", "client-id", "client-secret", "lms.example.org", zap.NewNop())
	return &Bridge{Client: client, Provider: "annolti"}, fake
}

func instructor() lti.User {
	return lti.User{
		UserID:                   "teacher-1",
		OAuthConsumerKey:         "key-1",
		Roles:                    "Instructor",
		ToolConsumerInstanceGUID: "guid-1",
		DisplayName:              "Prof. Ada",
	}
}

func learner() lti.User {
	return lti.User{
		UserID:                   "student-1",
		OAuthConsumerKey:         "key-1",
		Roles:                    "Learner",
		ToolConsumerInstanceGUID: "guid-1",
		DisplayName:              "Student One",
	}
}

func TestInstructorFirstLaunchCreatesGroup(t *testing.T) {
	b, fake := newTestBridge(t)

	prov, err := b.Provision(context.Background(), instructor(), "c-1", "Biology 101")
	require.NoError(t, err)

	apid := AuthorityProvidedID("guid-1", "c-1")
	wantGroupID := GroupID(apid, "lms.example.org")
	assert.Equal(t, wantGroupID, prov.GroupID)
	assert.Equal(t, "Biology 101", fake.groups[wantGroupID])
	assert.Equal(t, prov.User.UserID(), fake.createGroupForwardedUser,
		"group creation must act as the instructor")
	assert.Contains(t, fake.members[wantGroupID], prov.User.UserID())
	assert.True(t, fake.users[prov.User.Username])
}

func TestLearnerBeforeInstructorIsRefused(t *testing.T) {
	b, fake := newTestBridge(t)

	_, err := b.Provision(context.Background(), learner(), "c-1", "Biology 101")
	assert.ErrorIs(t, err, errorx.ErrInstructorMustLaunchFirst)
	assert.Empty(t, fake.groups, "a learner must not create the group")
}

func TestLearnerAfterInstructorJoinsGroup(t *testing.T) {
	b, fake := newTestBridge(t)
	ctx := context.Background()

	_, err := b.Provision(ctx, instructor(), "c-1", "Biology 101")
	require.NoError(t, err)

	prov, err := b.Provision(ctx, learner(), "c-1", "Biology 101")
	require.NoError(t, err)
	assert.Contains(t, fake.members[prov.GroupID], prov.User.UserID())
}

func TestProvisionIsIdempotent(t *testing.T) {
	b, fake := newTestBridge(t)
	ctx := context.Background()

	first, err := b.Provision(ctx, instructor(), "c-1", "Biology 101")
	require.NoError(t, err)
	second, err := b.Provision(ctx, instructor(), "c-1", "Biology 101")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, fake.members[first.GroupID], 1, "replay must not duplicate membership")
}

func TestGroupRenamedOnTitleChange(t *testing.T) {
	b, fake := newTestBridge(t)
	ctx := context.Background()

	prov, err := b.Provision(ctx, instructor(), "c-1", "Biology 101")
	require.NoError(t, err)
	_, err = b.Provision(ctx, instructor(), "c-1", "Biology 102")
	require.NoError(t, err)
	assert.Equal(t, "Biology 102", fake.groups[prov.GroupID])
}
