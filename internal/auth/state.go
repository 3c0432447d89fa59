package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/lti"
)

// StateLifetime bounds how long an OAuth2 authorisation round-trip may
// take before the state token is rejected.
const StateLifetime = time.Hour

type stateClaims struct {
	User lti.User `json:"lti_user"`
	CSRF string   `json:"csrf"`
	jwt.RegisteredClaims
}

// StateService produces and checks the OAuth2 `state` parameter. The state
// is itself a signed token carrying the LTI user and a CSRF value; the CSRF
// value is stashed server-side in parallel and both must match on the
// callback.
type StateService struct {
	secret []byte
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time // csrf -> expiry
}

func NewStateService(secret string) *StateService {
	return &StateService{
		secret:  []byte(secret),
		now:     time.Now,
		pending: make(map[string]time.Time),
	}
}

// Mint signs a fresh state token for u and registers its CSRF value.
func (s *StateService) Mint(u lti.User) (string, error) {
	csrf := uuid.NewString()
	now := s.now()
	claims := &stateClaims{
		User: u,
		CSRF: csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateLifetime)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	for c, exp := range s.pending {
		if now.After(exp) {
			delete(s.pending, c)
		}
	}
	s.pending[csrf] = now.Add(StateLifetime)
	s.mu.Unlock()
	return tok, nil
}

// Check verifies the state token from a callback and consumes its CSRF
// registration. Returns the user embedded at mint time.
func (s *StateService) Check(state string) (lti.User, error) {
	claims := &stateClaims{}
	token, err := jwt.ParseWithClaims(state, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return lti.User{}, errorx.ErrStateExpired
		}
		return lti.User{}, errorx.ErrStateMismatch
	}
	if !token.Valid || claims.CSRF == "" {
		return lti.User{}, errorx.ErrStateMismatch
	}

	s.mu.Lock()
	exp, ok := s.pending[claims.CSRF]
	if ok {
		delete(s.pending, claims.CSRF)
	}
	s.mu.Unlock()
	if !ok {
		return lti.User{}, errorx.ErrStateMismatch
	}
	if s.now().After(exp) {
		return lti.User{}, errorx.ErrStateExpired
	}
	return claims.User, nil
}

// Peek decodes the state token without consuming the CSRF registration.
// Used by the authentication façade, which must not invalidate the state
// before the OAuth2 callback handler checks it properly.
func (s *StateService) Peek(state string) (lti.User, error) {
	claims := &stateClaims{}
	token, err := jwt.ParseWithClaims(state, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return lti.User{}, errorx.ErrStateMismatch
	}
	return claims.User, nil
}
