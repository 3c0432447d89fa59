package auth

import (
	"context"
	"net/http"

	"github.com/edbridge/annolti/internal/lti"
	"github.com/edbridge/annolti/internal/oauth1"
)

// SecretSource resolves the OAuth1 shared secret for a consumer key.
// Implemented by the application-instance registry.
type SecretSource interface {
	SharedSecret(ctx context.Context, consumerKey string) (string, error)
}

// LaunchVerifier authenticates form-encoded LTI launch POSTs.
type LaunchVerifier struct {
	Secrets SecretSource
	Replay  oauth1.Replay
}

func NewLaunchVerifier(secrets SecretSource) *LaunchVerifier {
	return &LaunchVerifier{Secrets: secrets, Replay: oauth1.NewNonceCache()}
}

// Verify parses the launch form, validates the required LTI parameters,
// and checks the OAuth 1.0a signature against the instance's shared
// secret. The signed URL is reconstructed from the request; a proxy that
// rewrites scheme or host must restore the original via the standard
// Forwarded headers before this point.
func (v *LaunchVerifier) Verify(r *http.Request) (lti.LaunchParams, error) {
	if err := r.ParseForm(); err != nil {
		return lti.LaunchParams{}, err
	}
	params, err := lti.ParseLaunch(r.PostForm)
	if err != nil {
		return lti.LaunchParams{}, err
	}
	secret, err := v.Secrets.SharedSecret(r.Context(), params.OAuthConsumerKey)
	if err != nil {
		return lti.LaunchParams{}, err
	}
	if err := oauth1.Verify(r.Method, requestURL(r), r.PostForm, secret, v.Replay); err != nil {
		return lti.LaunchParams{}, err
	}
	return params, nil
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
