package registry

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edbridge/annolti/internal/db"
	"github.com/edbridge/annolti/internal/errorx"
)

const testLMSSecret = "0123456789abcdefEXTRA"

func newStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewStore(dbh, testLMSSecret)
}

func TestCreateAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	inst := ApplicationInstance{
		ConsumerKey:         "key-1",
		SharedSecret:        "shared-1",
		LMSURL:              "https://canvas.example.com",
		DeveloperKey:        "dev-key-1",
		ProvisioningEnabled: true,
	}
	require.NoError(t, s.Create(ctx, inst, "dev-secret-1"))

	got, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", got.ConsumerKey)
	assert.Equal(t, "shared-1", got.SharedSecret)
	assert.Equal(t, "https://canvas.example.com", got.LMSURL)
	assert.True(t, got.ProvisioningEnabled)
	assert.Empty(t, got.ToolConsumerInstanceGUID)

	secret, err := s.SharedSecret(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "shared-1", secret)
}

func TestDeveloperSecretRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, ApplicationInstance{
		ConsumerKey: "key-1", SharedSecret: "x", LMSURL: "https://lms.example.com",
	}, "super-secret-developer-value"))

	plain, err := s.DeveloperSecret(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-developer-value", string(plain))

	// The ciphertext at rest must differ from the plaintext.
	got, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.NotContains(t, string(got.developerSecret), "super-secret")
}

func TestDeveloperSecretAbsent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, ApplicationInstance{
		ConsumerKey: "key-1", SharedSecret: "x", LMSURL: "https://lms.example.com",
	}, ""))

	plain, err := s.DeveloperSecret(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, plain)
}

func TestGetUnknownKey(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, errorx.ErrConsumerKeyUnknown)
}

func TestBindGUID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, ApplicationInstance{
		ConsumerKey: "key-1", SharedSecret: "x", LMSURL: "https://lms.example.com",
	}, ""))

	require.NoError(t, s.BindGUID(ctx, "key-1", "guid-1"))
	require.NoError(t, s.BindGUID(ctx, "key-1", "guid-1"), "rebinding the same guid is idempotent")

	err := s.BindGUID(ctx, "key-1", "guid-2")
	var reused *errorx.ReusedConsumerKeyError
	require.ErrorAs(t, err, &reused)
	assert.Equal(t, "guid-1", reused.ExistingGUID)
	assert.Equal(t, "guid-2", reused.NewGUID)

	// The refused bind must not have touched the row.
	got, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "guid-1", got.ToolConsumerInstanceGUID)
}
