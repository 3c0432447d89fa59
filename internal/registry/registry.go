// Package registry stores per-LMS-install registrations: the consumer key
// an LMS uses to address this tool, the OAuth1 shared secret that signs its
// launches, and the developer key/secret for calling its API. It is the
// only component that touches the crypto primitive.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edbridge/annolti/internal/errorx"
)

// ApplicationInstance is one LMS install's registration row.
type ApplicationInstance struct {
	ConsumerKey              string
	SharedSecret             string
	LMSURL                   string
	DeveloperKey             string
	developerSecret          []byte // ciphertext
	aesIV                    []byte
	ProvisioningEnabled      bool
	ToolConsumerInstanceGUID string // empty until first launch binds it
}

type Store struct {
	db     *sql.DB
	aesKey []byte
	now    func() time.Time
}

func NewStore(db *sql.DB, lmsSecret string) *Store {
	return &Store{db: db, aesKey: aesKey(lmsSecret), now: time.Now}
}

// Create registers a new instance, encrypting the developer secret with a
// fresh IV.
func (s *Store) Create(ctx context.Context, inst ApplicationInstance, developerSecret string) error {
	var cipherSecret, iv []byte
	if developerSecret != "" {
		var err error
		cipherSecret, iv, err = encrypt(s.aesKey, []byte(developerSecret))
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO application_instances
		(consumer_key, shared_secret, lms_url, developer_key, developer_secret, aes_cipher_iv, provisioning, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		inst.ConsumerKey, inst.SharedSecret, inst.LMSURL, inst.DeveloperKey,
		cipherSecret, iv, inst.ProvisioningEnabled, s.now().Unix())
	return err
}

// Get looks up the instance for a consumer key.
func (s *Store) Get(ctx context.Context, consumerKey string) (ApplicationInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT consumer_key, shared_secret, lms_url, developer_key,
		developer_secret, aes_cipher_iv, provisioning, tool_consumer_instance_guid
		FROM application_instances WHERE consumer_key=$1`, consumerKey)
	var inst ApplicationInstance
	var guid sql.NullString
	if err := row.Scan(&inst.ConsumerKey, &inst.SharedSecret, &inst.LMSURL, &inst.DeveloperKey,
		&inst.developerSecret, &inst.aesIV, &inst.ProvisioningEnabled, &guid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ApplicationInstance{}, errorx.ErrConsumerKeyUnknown
		}
		return ApplicationInstance{}, err
	}
	inst.ToolConsumerInstanceGUID = guid.String
	return inst, nil
}

// SharedSecret satisfies auth.SecretSource.
func (s *Store) SharedSecret(ctx context.Context, consumerKey string) (string, error) {
	inst, err := s.Get(ctx, consumerKey)
	if err != nil {
		return "", err
	}
	return inst.SharedSecret, nil
}

// DeveloperSecret decrypts the instance's developer secret.
func (s *Store) DeveloperSecret(ctx context.Context, consumerKey string) ([]byte, error) {
	inst, err := s.Get(ctx, consumerKey)
	if err != nil {
		return nil, err
	}
	if len(inst.developerSecret) == 0 {
		return nil, nil
	}
	return decrypt(s.aesKey, inst.developerSecret, inst.aesIV)
}

// ProvisioningEnabled reports whether launches from this instance
// provision users and groups in H.
func (s *Store) ProvisioningEnabled(ctx context.Context, consumerKey string) (bool, error) {
	inst, err := s.Get(ctx, consumerKey)
	if err != nil {
		return false, err
	}
	return inst.ProvisioningEnabled, nil
}

// BindGUID records the tool_consumer_instance_guid on the instance's first
// real launch. A later launch under the same consumer key but a different
// guid is refused with ReusedConsumerKeyError; the row is never rebound.
func (s *Store) BindGUID(ctx context.Context, consumerKey, guid string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE application_instances
		SET tool_consumer_instance_guid=$2
		WHERE consumer_key=$1 AND (tool_consumer_instance_guid IS NULL OR tool_consumer_instance_guid=$2)`,
		consumerKey, guid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	inst, err := s.Get(ctx, consumerKey)
	if err != nil {
		return err
	}
	return &errorx.ReusedConsumerKeyError{ExistingGUID: inst.ToolConsumerInstanceGUID, NewGUID: guid}
}
