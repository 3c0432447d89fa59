package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/auth"
	"github.com/edbridge/annolti/internal/config"
	"github.com/edbridge/annolti/internal/db"
	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/jsconfig"
	"github.com/edbridge/annolti/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })

	cfg := config.Config{
		PublicURL: "https://tool.example.com",
		LMSSecret: "0123456789abcdef",
	}
	reg := registry.NewStore(dbh, cfg.LMSSecret)
	return &Server{
		Cfg:      cfg,
		Log:      zap.NewNop(),
		Registry: reg,
		Verifier: auth.NewLaunchVerifier(reg),
		Bearer:   auth.NewTokenService("bearer-secret"),
		NewBuilder: func() *jsconfig.Builder {
			return jsconfig.NewBuilder("https://h.example.com/api", "lms.example.org",
				"jwt-cid", "jwt-csecret", "https://via.example.com",
				"https://tool.example.com", nil)
		},
	}
}

func TestRegisterCreatesInstance(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{}
	form.Set("lms_url", "https://canvas.example.com")
	form.Set("email", "admin@example.com")
	req := httptest.NewRequest(http.MethodPost, "/welcome", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handleRegister(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out["consumer_key"])
	assert.NotEmpty(t, out["shared_secret"])
	assert.Equal(t, "https://tool.example.com/lti_launches", out["launch_url"])

	// The registration is immediately usable.
	inst, err := s.Registry.Get(req.Context(), out["consumer_key"])
	require.NoError(t, err)
	assert.Equal(t, "https://canvas.example.com", inst.LMSURL)
	assert.True(t, inst.ProvisioningEnabled)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []url.Values{
		{},
		{"lms_url": {"https://canvas.example.com"}},
		{"email": {"a@b.com"}},
		{"lms_url": {"not a url"}, "email": {"a@b.com"}},
		{"lms_url": {"https://c.example.com"}, "email": {"a@b.com"}, "developer_key": {"k"}},
	}
	for _, form := range cases {
		req := httptest.NewRequest(http.MethodPost, "/welcome", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.handleRegister(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "form %v", form)
	}
}

func TestRenderAppEmbedsConfig(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.renderApp(rec, s.NewBuilder().AuthToken("tok-1").Build())

	body := rec.Body.String()
	assert.Contains(t, body, `class="js-config"`)
	assert.Contains(t, body, `"authToken":"tok-1"`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestRenderLaunchErrorReusedConsumerKey(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/lti_launches", nil)

	s.renderLaunchError(rec, req, nil, &errorx.ReusedConsumerKeyError{
		ExistingGUID: "guid-1", NewGUID: "guid-2",
	})

	body := rec.Body.String()
	assert.Contains(t, body, "reused_consumer_key")
	assert.Contains(t, body, "guid-1")
	assert.Contains(t, body, "guid-2")
	assert.Contains(t, body, jsconfig.ModeErrorDialog)
}

func TestContentItemValidationRedirectsToReturnURL(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{}
	form.Set("launch_presentation_return_url", "https://lms.example.com/return?x=1")
	req := httptest.NewRequest(http.MethodPost, "/content_item_selection", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handleContentItemSelection(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "lms.example.com", loc.Host)
	assert.Equal(t, "1", loc.Query().Get("x"), "existing query params survive")
	assert.Contains(t, loc.Query().Get("lti_msg"), "oauth_consumer_key")
}

func TestContentItemValidationWithoutReturnURLIs422JSON(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/content_item_selection", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handleContentItemSelection(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "missing_param", out["error_code"])
	assert.Equal(t, "oauth_consumer_key", out["parameter"])
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errorx.ErrInvalidOAuthSignature, http.StatusForbidden},
		{errorx.ErrConsumerKeyUnknown, http.StatusForbidden},
		{errorx.ErrExpiredToken, http.StatusUnauthorized},
		{errorx.ErrMalformedToken, http.StatusUnauthorized},
		{errorx.ErrStateMismatch, http.StatusBadRequest},
		{errorx.ErrNotAuthorizedToConfigure, http.StatusForbidden},
		{&errorx.MissingParamError{Name: "user_id"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, _, _ := classify(c.err)
		assert.Equal(t, c.status, status, "error %v", c.err)
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	s.Facade = &auth.Facade{Bearer: s.Bearer}
	router := s.Routes()

	for _, path := range []string{
		"/api/canvas/authorize",
		"/api/canvas/courses/1/files",
		"/api/grades",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "path %s", path)
	}
}
