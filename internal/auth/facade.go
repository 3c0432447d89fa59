package auth

import (
	"net/http"
	"strings"

	"github.com/edbridge/annolti/internal/lti"
)

// Facade resolves the authenticated user for any inbound request, trying
// each mechanism in order and swallowing its errors: a request that fails
// one mechanism may still authenticate through the next. Only when every
// mechanism fails is the request anonymous; downstream authorisation
// decides what anonymous may do.
type Facade struct {
	Launch *LaunchVerifier
	Bearer *TokenService
	State  *StateService
}

// Resolve returns the request's user, or nil for anonymous.
func (f *Facade) Resolve(r *http.Request) *lti.User {
	if f.Launch != nil && r.Method == http.MethodPost {
		if params, err := f.Launch.Verify(r); err == nil {
			u := params.User()
			return &u
		}
	}
	if f.Bearer != nil {
		if raw := BearerFromRequest(r); raw != "" {
			if u, err := f.Bearer.Decode(raw); err == nil {
				return &u
			}
		}
	}
	if f.State != nil {
		state := r.URL.Query().Get("state")
		if state != "" && r.URL.Query().Get("code") != "" {
			if u, err := f.State.Peek(state); err == nil {
				return &u
			}
		}
	}
	return nil
}

// BearerFromRequest extracts a bearer token from the Authorization header,
// or from an `authorization` query/form field for contexts that cannot set
// headers (iframe GETs, plain form posts).
func BearerFromRequest(r *http.Request) string {
	candidates := []string{
		r.Header.Get("Authorization"),
		r.URL.Query().Get("authorization"),
	}
	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		candidates = append(candidates, r.PostForm.Get("authorization"))
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.HasPrefix(c, "Bearer ") {
			return strings.TrimPrefix(c, "Bearer ")
		}
		return c
	}
	return ""
}
