// Package grading records the LIS outcome tuples student launches carry,
// so a later instructor launch can enumerate students and submit grades.
package grading

import (
	"context"
	"database/sql"
	"time"
)

// Info is one (student, assignment) outcome record.
type Info struct {
	ConsumerKey          string
	UserID               string
	ContextID            string
	ResourceLinkID       string
	LISResultSourcedID   string
	LISOutcomeServiceURL string
	HUsername            string
	HDisplayName         string
	ProductFamilyCode    string
}

// StudentGrading is the projection bundled into the instructor's JS
// config so the grading UI can iterate students.
type StudentGrading struct {
	UserID               string `json:"userid"`
	DisplayName          string `json:"displayName"`
	LISResultSourcedID   string `json:"LISResultSourcedId"`
	LISOutcomeServiceURL string `json:"LISOutcomeServiceUrl"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store { return &Store{db: db, now: time.Now} }

// Upsert writes the row for (consumer_key, user_id, context_id,
// resource_link_id); each student launch refreshes it.
func (s *Store) Upsert(ctx context.Context, info Info) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO grading_infos
		(consumer_key, user_id, context_id, resource_link_id,
		 lis_result_sourcedid, lis_outcome_service_url, h_username, h_display_name,
		 product_family_code, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (consumer_key, user_id, context_id, resource_link_id)
		DO UPDATE SET lis_result_sourcedid=EXCLUDED.lis_result_sourcedid,
			lis_outcome_service_url=EXCLUDED.lis_outcome_service_url,
			h_username=EXCLUDED.h_username, h_display_name=EXCLUDED.h_display_name,
			product_family_code=EXCLUDED.product_family_code, updated_at=EXCLUDED.updated_at`,
		info.ConsumerKey, info.UserID, info.ContextID, info.ResourceLinkID,
		info.LISResultSourcedID, info.LISOutcomeServiceURL, info.HUsername, info.HDisplayName,
		info.ProductFamilyCode, s.now().Unix())
	return err
}

// ListStudents enumerates every student who has launched the assignment.
func (s *Store) ListStudents(ctx context.Context, consumerKey, contextID, resourceLinkID string) ([]StudentGrading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT h_username, h_display_name,
		lis_result_sourcedid, lis_outcome_service_url
		FROM grading_infos
		WHERE consumer_key=$1 AND context_id=$2 AND resource_link_id=$3
		ORDER BY h_display_name, h_username`,
		consumerKey, contextID, resourceLinkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudentGrading
	for rows.Next() {
		var sg StudentGrading
		if err := rows.Scan(&sg.UserID, &sg.DisplayName, &sg.LISResultSourcedID, &sg.LISOutcomeServiceURL); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}
