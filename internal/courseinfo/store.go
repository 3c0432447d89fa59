// Package courseinfo keeps the denormalised course rows and the
// append-only launch audit log.
package courseinfo

import (
	"context"
	"database/sql"
	"time"
)

// GroupInfo mirrors the latest launch metadata for a course, keyed by the
// same authority_provided_id as the H group.
type GroupInfo struct {
	AuthorityProvidedID      string
	ConsumerKey              string
	ContextID                string
	ContextTitle             string
	ContextLabel             string
	ToolConsumerInstanceGUID string
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store { return &Store{db: db, now: time.Now} }

// UpsertGroupInfo refreshes the course row on every launch.
func (s *Store) UpsertGroupInfo(ctx context.Context, gi GroupInfo) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO group_infos
		(authority_provided_id, consumer_key, context_id, context_title, context_label,
		 tool_consumer_instance_guid, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (authority_provided_id)
		DO UPDATE SET consumer_key=EXCLUDED.consumer_key, context_id=EXCLUDED.context_id,
			context_title=EXCLUDED.context_title, context_label=EXCLUDED.context_label,
			tool_consumer_instance_guid=EXCLUDED.tool_consumer_instance_guid,
			updated_at=EXCLUDED.updated_at`,
		gi.AuthorityProvidedID, gi.ConsumerKey, gi.ContextID, gi.ContextTitle, gi.ContextLabel,
		gi.ToolConsumerInstanceGUID, s.now().Unix())
	return err
}

// RecordLaunch appends one audit row. Rows are never updated or deleted.
func (s *Store) RecordLaunch(ctx context.Context, contextID, consumerKey string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO lti_launches (context_id, consumer_key, created_at)
		VALUES ($1,$2,$3)`, contextID, consumerKey, s.now().Unix())
	return err
}
