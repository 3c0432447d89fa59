package lmsoauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/edbridge/annolti/internal/auth"
	"github.com/edbridge/annolti/internal/lti"
	"github.com/edbridge/annolti/internal/registry"
)

// Endpoints names the provider-specific paths below an instance's LMS URL.
// Canvas is the only LMS whose file APIs require per-user tokens today.
type Endpoints struct {
	AuthorizePath string // e.g. /login/oauth2/auth
	TokenPath     string // e.g. /login/oauth2/token
}

var CanvasEndpoints = Endpoints{
	AuthorizePath: "/login/oauth2/auth",
	TokenPath:     "/login/oauth2/token",
}

// Flow drives the OAuth2 authorisation-code round-trip against an LMS.
// The `state` parameter is a signed token carrying the LTI user (see
// auth.StateService), so the callback can re-establish identity without a
// session cookie surviving the LMS redirect.
type Flow struct {
	Registry    *registry.Store
	States      *auth.StateService
	Tokens      *Store
	Endpoints   Endpoints
	RedirectURL string // this tool's callback URL
	HTTP        *http.Client
}

func (f *Flow) config(ctx context.Context, consumerKey string) (*oauth2.Config, error) {
	inst, err := f.Registry.Get(ctx, consumerKey)
	if err != nil {
		return nil, err
	}
	secret, err := f.Registry.DeveloperSecret(ctx, consumerKey)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(inst.LMSURL, "/")
	return &oauth2.Config{
		ClientID:     inst.DeveloperKey,
		ClientSecret: string(secret),
		RedirectURL:  f.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + f.Endpoints.AuthorizePath,
			TokenURL:  base + f.Endpoints.TokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, nil
}

// AuthorizeURL mints a state token for u and builds the LMS authorise URL
// to redirect the browser to.
func (f *Flow) AuthorizeURL(ctx context.Context, u lti.User) (string, error) {
	cfg, err := f.config(ctx, u.OAuthConsumerKey)
	if err != nil {
		return "", err
	}
	state, err := f.States.Mint(u)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// HandleCallback validates the state round-trip, exchanges the code, and
// persists the tokens for (consumer_key, user_id).
func (f *Flow) HandleCallback(ctx context.Context, state, code string) (lti.User, error) {
	u, err := f.States.Check(state)
	if err != nil {
		return lti.User{}, err
	}
	cfg, err := f.config(ctx, u.OAuthConsumerKey)
	if err != nil {
		return lti.User{}, err
	}
	if f.HTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.HTTP)
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return lti.User{}, fmt.Errorf("code exchange: %w", err)
	}
	expiresIn := 0
	if !tok.Expiry.IsZero() {
		expiresIn = int(time.Until(tok.Expiry).Seconds())
	}
	if err := f.Tokens.Save(ctx, u.OAuthConsumerKey, u.UserID, tok.AccessToken, tok.RefreshToken, expiresIn); err != nil {
		return lti.User{}, err
	}
	return u, nil
}

// TokenURL resolves the refresh endpoint for an instance, for the API
// client's refresh-and-retry path.
func (f *Flow) TokenURL(ctx context.Context, consumerKey string) (string, error) {
	inst, err := f.Registry.Get(ctx, consumerKey)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(inst.LMSURL, "/") + f.Endpoints.TokenPath, nil
}
