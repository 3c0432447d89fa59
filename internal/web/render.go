package web

import (
	"encoding/json"
	"errors"
	htmltemplate "html/template"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/jsconfig"
	"github.com/edbridge/annolti/internal/launch"
)

func (s *Server) renderApp(w http.ResponseWriter, cfg jsconfig.Config) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// json.Marshal HTML-escapes < > &, so the blob cannot break out of the
	// script element.
	_ = appTmpl.Execute(w, struct{ ConfigJSON htmltemplate.JS }{htmltemplate.JS(raw)})
}

// renderError serves the plain HTML error page for failures that happen
// before the client can boot, such as a bad signature.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, title, message := classify(err)
	if status >= 500 {
		s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.Log.Warn("request refused", zap.String("path", r.URL.Path), zap.Error(err))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = errorTmpl.Execute(w, struct{ Title, Message string }{title, message})
}

// renderLaunchError maps pipeline failures to a response. Where the
// browser-side client can present a useful dialog or recovery flow, the
// config's errorDialog section carries the error instead of a bare page.
func (s *Server) renderLaunchError(w http.ResponseWriter, r *http.Request, l *launch.Launch, err error) {
	var reused *errorx.ReusedConsumerKeyError
	var extReq *errorx.ExternalRequestError

	switch {
	case errors.As(err, &reused):
		cfg := s.NewBuilder().Error("reused_consumer_key", map[string]string{
			"tool_consumer_instance_guid":     reused.ExistingGUID,
			"new_tool_consumer_instance_guid": reused.NewGUID,
		}).Build()
		s.renderApp(w, cfg)

	case errors.Is(err, errorx.ErrInstructorMustLaunchFirst):
		cfg := s.NewBuilder().Error("instructor_not_launched_yet", nil).Build()
		s.renderApp(w, cfg)

	case errors.Is(err, errorx.ErrAccessTokenMissing):
		// The client opens the authorise popup and relaunches on the
		// completion message.
		b := s.NewBuilder().Error("canvas_api_permission_error", nil)
		if l != nil {
			if token, encErr := s.Bearer.Encode(l.User); encErr == nil {
				b.AuthToken(token).AuthorizeURL(s.authorizeURL(token))
			}
		}
		s.renderApp(w, b.Build())

	case errors.Is(err, errorx.ErrCanvasFileNotFound):
		cfg := s.NewBuilder().Error("canvas_file_not_found_in_course", nil).Build()
		s.renderApp(w, cfg)

	case errors.As(err, &extReq):
		s.Log.Error("lms api request failed", zap.String("path", r.URL.Path), zap.Error(err))
		cfg := s.NewBuilder().Error("canvas_api_error", map[string]string{
			"status": http.StatusText(extReq.Status),
		}).Build()
		s.renderApp(w, cfg)

	default:
		s.renderError(w, r, err)
	}
}

// renderContentItemError answers a failed deep-linking launch. When the
// form carries launch_presentation_return_url, the LMS expects the user
// back with an lti_msg rather than an error page; otherwise validation
// errors get a machine-readable 422.
func (s *Server) renderContentItemError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *errorx.MissingParamError
	if !errors.As(err, &missing) {
		s.renderError(w, r, err)
		return
	}
	if returnURL := r.PostForm.Get("launch_presentation_return_url"); returnURL != "" {
		if u, parseErr := url.Parse(returnURL); parseErr == nil && u.IsAbs() {
			q := u.Query()
			q.Set("lti_msg", err.Error())
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
		"error_code": "missing_param",
		"parameter":  missing.Name,
		"message":    err.Error(),
	})
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error) {
	status, _, message := classify(err)
	if errors.Is(err, errorx.ErrAccessTokenMissing) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error_code": "canvas_api_token_missing",
			"message":    message,
		})
		return
	}
	var extReq *errorx.ExternalRequestError
	if errors.As(err, &extReq) {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error_code": "canvas_api_error",
			"message":    message,
		})
		return
	}
	writeJSON(w, status, map[string]string{"message": message})
}

// classify maps the error taxonomy to an HTTP status and user-facing text.
func classify(err error) (status int, title, message string) {
	var missing *errorx.MissingParamError
	switch {
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, "Launch not valid", err.Error()
	case errors.Is(err, errorx.ErrInvalidOAuthSignature):
		return http.StatusForbidden, "Launch not authorized",
			"The launch request's signature did not verify. Check the consumer key and shared secret configured in your LMS."
	case errors.Is(err, errorx.ErrConsumerKeyUnknown):
		return http.StatusForbidden, "Unknown consumer key",
			"No registration exists for the consumer key this launch was signed with."
	case errors.Is(err, errorx.ErrExpiredToken),
		errors.Is(err, errorx.ErrInvalidSignature),
		errors.Is(err, errorx.ErrMalformedToken),
		errors.Is(err, errorx.ErrMissingClaim),
		errors.Is(err, errorx.ErrMissingBearer):
		return http.StatusUnauthorized, "Session expired",
			"Your session is no longer valid. Reload the assignment to start again."
	case errors.Is(err, errorx.ErrStateExpired), errors.Is(err, errorx.ErrStateMismatch):
		return http.StatusBadRequest, "Authorization failed",
			"The authorization response could not be matched to a pending request. Try again."
	case errors.Is(err, errorx.ErrNotAuthorizedToConfigure):
		return http.StatusForbidden, "Not authorized",
			"Only instructors can configure an assignment."
	default:
		return http.StatusInternalServerError, "Something went wrong",
			"An unexpected error occurred. Reload the assignment to try again."
	}
}

func (s *Server) authorizeURL(bearerToken string) string {
	return s.Cfg.PublicURL + "/api/canvas/authorize?authorization=" + url.QueryEscape(bearerToken)
}

func publicHost(publicURL string) string {
	if u, err := url.Parse(publicURL); err == nil && u.Host != "" {
		return u.Host
	}
	return publicURL
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
