// Package web mounts the HTTP surface: the LTI launch routes, the OAuth2
// authorise round-trip, the bearer-authenticated picker APIs, and the
// operational endpoints.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/assignment"
	"github.com/edbridge/annolti/internal/auth"
	"github.com/edbridge/annolti/internal/config"
	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/grading"
	"github.com/edbridge/annolti/internal/jsconfig"
	"github.com/edbridge/annolti/internal/launch"
	"github.com/edbridge/annolti/internal/lmsapi"
	"github.com/edbridge/annolti/internal/lmsapi/canvas"
	"github.com/edbridge/annolti/internal/lmsoauth"
	"github.com/edbridge/annolti/internal/lti"
	"github.com/edbridge/annolti/internal/outcomes"
	"github.com/edbridge/annolti/internal/registry"
	"github.com/edbridge/annolti/internal/resolver"
)

type Server struct {
	Cfg config.Config
	Log *zap.Logger

	Registry    *registry.Store
	Assignments *assignment.Store
	Files       *assignment.FileCache
	Tokens      *lmsoauth.Store
	Grades      *grading.Store

	Verifier *auth.LaunchVerifier
	Bearer   *auth.TokenService
	States   *auth.StateService
	Facade   *auth.Facade

	Flow     *lmsoauth.Flow
	Pipeline *launch.Pipeline
	Outcomes *outcomes.Client

	NewBuilder func() *jsconfig.Builder
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(requestLogger(s.Log))
	r.Use(chimw.Timeout(30 * time.Second))

	// LTI-facing routes; the LMS posts cross-origin, no CORS involved.
	r.Post("/lti_launches", s.handleLaunch)
	r.Post("/content_item_selection", s.handleContentItemSelection)
	r.Post("/assignment", s.handleConfigureAssignment)
	r.Get("/canvas_oauth_callback", s.handleOAuthCallback)
	r.Post("/welcome", s.handleRegister)

	// Sidebar/picker XHR under /api, CORS-scoped to the client origins.
	r.Route("/api", func(ar chi.Router) {
		if len(s.Cfg.RPCAllowedOrigins) > 0 {
			ar.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.Cfg.RPCAllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Authorization", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		ar.Get("/canvas/authorize", s.handleAuthorize)
		ar.Get("/canvas/courses/{courseID}/files", s.handleListFiles)
		ar.Get("/canvas/courses/{courseID}/files/{fileID}/via_url", s.handleFileViaURL)
		ar.Post("/grades", s.handleSubmitGrade)
		ar.Get("/grades", s.handleReadGrade)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// CanvasClient builds the per-instance, per-user API client. Also used by
// the launch pipeline through its factory field.
func (s *Server) CanvasClient(ctx context.Context, inst registry.ApplicationInstance, userID string) (*canvas.Client, error) {
	secret, err := s.Registry.DeveloperSecret(ctx, inst.ConsumerKey)
	if err != nil {
		return nil, err
	}
	tokenURL, err := s.Flow.TokenURL(ctx, inst.ConsumerKey)
	if err != nil {
		return nil, err
	}
	return &canvas.Client{API: &lmsapi.Client{
		HTTP:         &http.Client{Timeout: lmsapi.ReadTimeout},
		BaseURL:      strings.TrimSuffix(inst.LMSURL, "/") + "/api/v1",
		Tokens:       s.Tokens,
		ConsumerKey:  inst.ConsumerKey,
		UserID:       userID,
		TokenURL:     tokenURL,
		ClientID:     inst.DeveloperKey,
		ClientSecret: string(secret),
		Is401:        canvas.Is401Body,
		Log:          s.Log,
	}}, nil
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	params, err := s.Verifier.Verify(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	l, err := s.Pipeline.Run(r.Context(), params)
	if err != nil {
		s.renderLaunchError(w, r, l, err)
		return
	}
	s.renderApp(w, l.Config)
}

// handleContentItemSelection serves the deep-linking flow: the LMS asks
// the tool to let the instructor pick content. The response config puts
// the client into picker mode; the eventual choice posts to /assignment.
func (s *Server) handleContentItemSelection(w http.ResponseWriter, r *http.Request) {
	params, err := s.Verifier.Verify(r)
	if err != nil {
		s.renderContentItemError(w, r, err)
		return
	}
	u := params.User()
	if !u.IsInstructor() {
		s.renderError(w, r, errorx.ErrNotAuthorizedToConfigure)
		return
	}
	token, err := s.Bearer.Encode(u)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	cfg := s.NewBuilder().
		Mode(jsconfig.ModeContentItemSelection).
		AuthToken(token).
		Build()
	s.renderApp(w, cfg)
}

// handleConfigureAssignment persists the instructor's document choice and
// renders the configured launch. The post carries the relayed launch
// params plus a bearer token.
func (s *Server) handleConfigureAssignment(w http.ResponseWriter, r *http.Request) {
	user := s.Facade.Resolve(r)
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !user.IsInstructor() {
		s.renderError(w, r, errorx.ErrNotAuthorizedToConfigure)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	params, err := lti.ParseRelaunch(r.PostForm, *user)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	docURL := resolver.FixDoubleEncoding(r.PostForm.Get("document_url"))
	switch {
	case params.CanvasFile && params.FileID != "":
		docURL = resolver.CanvasFileURL(params.FileID)
	case docURL == "":
		http.Error(w, "document_url required", http.StatusUnprocessableEntity)
		return
	}
	if _, err := s.Assignments.Set(r.Context(), user.ToolConsumerInstanceGUID, params.ResourceLinkID, docURL, assignment.Extra{}); err != nil {
		s.renderError(w, r, err)
		return
	}

	l, err := s.Pipeline.Run(r.Context(), params)
	if err != nil {
		s.renderLaunchError(w, r, l, err)
		return
	}
	s.renderApp(w, l.Config)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("error") != "" || q.Get("code") == "" {
		cfg := s.NewBuilder().Mode(jsconfig.ModeOAuth2RedirectError).Build()
		s.renderApp(w, cfg)
		return
	}
	if _, err := s.Flow.HandleCallback(r.Context(), q.Get("state"), q.Get("code")); err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = oauthDoneTmpl.Execute(w, nil)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	user := s.Facade.Resolve(r)
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	authURL, err := s.Flow.AuthorizeURL(r.Context(), *user)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	user := s.Facade.Resolve(r)
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	courseID := chi.URLParam(r, "courseID")

	inst, err := s.Registry.Get(r.Context(), user.OAuthConsumerKey)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	api, err := s.CanvasClient(r.Context(), inst, user.UserID)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	files, err := api.ListFiles(r.Context(), courseID)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	// Remember what we saw: the course-copy heuristic matches on these
	// names later.
	for _, f := range files {
		_ = s.Files.Upsert(r.Context(), assignment.FileRecord{
			ConsumerKey: user.OAuthConsumerKey,
			CourseID:    courseID,
			FileID:      strconv.FormatInt(f.ID, 10),
			DisplayName: f.DisplayName,
			UpdatedAt:   f.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleFileViaURL(w http.ResponseWriter, r *http.Request) {
	user := s.Facade.Resolve(r)
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	courseID := chi.URLParam(r, "courseID")
	fileID := chi.URLParam(r, "fileID")

	inst, err := s.Registry.Get(r.Context(), user.OAuthConsumerKey)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	api, err := s.CanvasClient(r.Context(), inst, user.UserID)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}

	a, err := s.Assignments.Get(r.Context(), user.ToolConsumerInstanceGUID, r.URL.Query().Get("resource_link_id"))
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	if a != nil {
		fileID = a.MappedFileID(fileID)
	}

	publicURL, err := api.PublicURL(r.Context(), fileID)
	if lmsapi.IsNotFound(err) {
		mapper := s.Pipeline.CopyMapper
		mappedID, mapErr := mapper.MapFile(r.Context(), api, a, user.OAuthConsumerKey, courseID, fileID)
		if mapErr != nil {
			s.writeJSONError(w, mapErr)
			return
		}
		publicURL, err = api.PublicURL(r.Context(), mappedID)
	}
	if err != nil {
		s.writeJSONError(w, err)
		return
	}

	via, err := jsconfig.ViaURL(s.Cfg.ViaURL, publicURL, publicHost(s.Cfg.PublicURL))
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"via_url": via})
}

type gradeRequest struct {
	LISOutcomeServiceURL string  `json:"lis_outcome_service_url"`
	LISResultSourcedID   string  `json:"lis_result_sourcedid"`
	Score                float64 `json:"score"`
}

func (s *Server) handleSubmitGrade(w http.ResponseWriter, r *http.Request) {
	user := s.Facade.Resolve(r)
	if user == nil || !user.IsInstructor() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	secret, err := s.Registry.SharedSecret(r.Context(), user.OAuthConsumerKey)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	if err := s.Outcomes.ReplaceResult(r.Context(), req.LISOutcomeServiceURL, req.LISResultSourcedID,
		req.Score, user.OAuthConsumerKey, secret); err != nil {
		s.writeJSONError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadGrade(w http.ResponseWriter, r *http.Request) {
	user := s.Facade.Resolve(r)
	if user == nil || !user.IsInstructor() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	secret, err := s.Registry.SharedSecret(r.Context(), user.OAuthConsumerKey)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	score, ok, err := s.Outcomes.ReadResult(r.Context(), q.Get("lis_outcome_service_url"),
		q.Get("lis_result_sourcedid"), user.OAuthConsumerKey, secret)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"score": score, "exists": ok})
}
