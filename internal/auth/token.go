// Package auth authenticates requests. Three mechanisms feed one identity:
// OAuth 1.0a signed launch POSTs, tool-minted bearer tokens, and the signed
// OAuth2 state parameter on authorisation callbacks.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/lti"
)

// BearerLifetime is how long a minted token authenticates follow-up
// requests (picker form posts, sidebar XHR) after the initial launch.
const BearerLifetime = 24 * time.Hour

type userClaims struct {
	UserID                   string `json:"user_id"`
	OAuthConsumerKey         string `json:"oauth_consumer_key"`
	Roles                    string `json:"roles"`
	ToolConsumerInstanceGUID string `json:"tool_consumer_instance_guid"`
	DisplayName              string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies HS256 bearer tokens carrying an lti.User.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), lifetime: BearerLifetime, now: time.Now}
}

// Encode signs the user into a compact token with exp = now + lifetime.
// Decode(Encode(u)) == u for the token's lifetime.
func (s *TokenService) Encode(u lti.User) (string, error) {
	now := s.now()
	claims := &userClaims{
		UserID:                   u.UserID,
		OAuthConsumerKey:         u.OAuthConsumerKey,
		Roles:                    u.Roles,
		ToolConsumerInstanceGUID: u.ToolConsumerInstanceGUID,
		DisplayName:              u.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Decode verifies signature and expiry and returns the embedded user.
// Failures are distinguishable: errorx.ErrExpiredToken,
// errorx.ErrInvalidSignature, errorx.ErrMalformedToken,
// errorx.ErrMissingClaim.
func (s *TokenService) Decode(tokenStr string) (lti.User, error) {
	claims := &userClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return lti.User{}, errorx.ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return lti.User{}, errorx.ErrInvalidSignature
		default:
			return lti.User{}, errorx.ErrMalformedToken
		}
	}
	if !token.Valid {
		return lti.User{}, errorx.ErrInvalidSignature
	}
	if claims.UserID == "" || claims.OAuthConsumerKey == "" {
		return lti.User{}, errorx.ErrMissingClaim
	}
	return lti.User{
		UserID:                   claims.UserID,
		OAuthConsumerKey:         claims.OAuthConsumerKey,
		Roles:                    claims.Roles,
		ToolConsumerInstanceGUID: claims.ToolConsumerInstanceGUID,
		DisplayName:              claims.DisplayName,
	}, nil
}
