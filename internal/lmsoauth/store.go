// Package lmsoauth manages the per-user OAuth2 tokens this tool holds for
// calling LMS APIs, and the authorise/callback flow that obtains them.
package lmsoauth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edbridge/annolti/internal/errorx"
)

// Token is one (consumer_key, user_id) row. Both tokens stay valid until
// the provider revokes them, so refresh races between concurrent requests
// resolve last-writer-wins.
type Token struct {
	ConsumerKey  string
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	ReceivedAt   time.Time
}

// Expired is advisory only: the API client decides whether to refresh from
// response status, not from the clock, because LMS clocks drift.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ReceivedAt.Add(time.Duration(t.ExpiresIn) * time.Second))
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store { return &Store{db: db, now: time.Now} }

// Save upserts the user's tokens and stamps received_at. An empty
// refreshToken retains the previously stored one: some LMSs omit it from
// refresh responses.
func (s *Store) Save(ctx context.Context, consumerKey, userID, accessToken, refreshToken string, expiresIn int) error {
	if refreshToken == "" {
		if prev, err := s.Get(ctx, consumerKey, userID); err == nil {
			refreshToken = prev.RefreshToken
		}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO oauth2_tokens
		(consumer_key, user_id, access_token, refresh_token, expires_in, received_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (consumer_key, user_id)
		DO UPDATE SET access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token,
			expires_in=EXCLUDED.expires_in, received_at=EXCLUDED.received_at`,
		consumerKey, userID, accessToken, refreshToken, expiresIn, s.now().Unix())
	return err
}

// Get returns the stored token or errorx.ErrAccessTokenMissing, which
// callers map to the "authorise with your LMS" redirect.
func (s *Store) Get(ctx context.Context, consumerKey, userID string) (Token, error) {
	row := s.db.QueryRowContext(ctx, `SELECT access_token, refresh_token, expires_in, received_at
		FROM oauth2_tokens WHERE consumer_key=$1 AND user_id=$2`, consumerKey, userID)
	t := Token{ConsumerKey: consumerKey, UserID: userID}
	var refresh sql.NullString
	var receivedAt int64
	if err := row.Scan(&t.AccessToken, &refresh, &t.ExpiresIn, &receivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, errorx.ErrAccessTokenMissing
		}
		return Token{}, err
	}
	t.RefreshToken = refresh.String
	t.ReceivedAt = time.Unix(receivedAt, 0).UTC()
	return t, nil
}
