package hapi

import (
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GrantLifetime is how long the client may authenticate as the h-user.
const GrantLifetime = 5 * time.Minute

// GrantToken mints the short-lived JWT the annotation client exchanges for
// an H session. It is signed with the h-specific JWT client secret, not
// the tool's own bearer secret.
func GrantToken(jwtClientID, jwtClientSecret, apiURL string, u HUser, now time.Time) (string, error) {
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{parsed.Hostname()},
		Issuer:    jwtClientID,
		Subject:   u.UserID(),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(GrantLifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtClientSecret))
}
