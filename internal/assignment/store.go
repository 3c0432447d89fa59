// Package assignment persists which document each LMS placement points at,
// keyed by (tool_consumer_instance_guid, resource_link_id).
package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// Extra is the JSON blob carried per assignment. The mapping tables remap
// LMS ids after a course copy, when the original id no longer resolves in
// the new course.
type Extra struct {
	CanvasFileMappings map[string]string `json:"canvas_file_mappings,omitempty"`
	CanvasPageMappings map[string]string `json:"canvas_page_mappings,omitempty"`
}

type Assignment struct {
	ToolConsumerInstanceGUID string
	ResourceLinkID           string
	DocumentURL              string
	Extra                    Extra
}

// MappedFileID returns the remapped file id, or the id itself when no
// mapping was recorded.
func (a Assignment) MappedFileID(fileID string) string {
	if mapped, ok := a.Extra.CanvasFileMappings[fileID]; ok {
		return mapped
	}
	return fileID
}

// MappedPageID is MappedFileID for wiki pages.
func (a Assignment) MappedPageID(pageID string) string {
	if mapped, ok := a.Extra.CanvasPageMappings[pageID]; ok {
		return mapped
	}
	return pageID
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Get returns the assignment, or nil when the placement is unconfigured.
func (s *Store) Get(ctx context.Context, guid, resourceLinkID string) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document_url, extra FROM assignments
		WHERE tool_consumer_instance_guid=$1 AND resource_link_id=$2`, guid, resourceLinkID)
	a := Assignment{ToolConsumerInstanceGUID: guid, ResourceLinkID: resourceLinkID}
	var extra string
	if err := row.Scan(&a.DocumentURL, &extra); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(extra), &a.Extra); err != nil {
		return nil, err
	}
	return &a, nil
}

// Set inserts or overwrites the document URL for a placement.
// Reconfiguration is an intended overwrite.
func (s *Store) Set(ctx context.Context, guid, resourceLinkID, documentURL string, extra Extra) (*Assignment, error) {
	ej, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assignments
		(tool_consumer_instance_guid, resource_link_id, document_url, extra)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tool_consumer_instance_guid, resource_link_id)
		DO UPDATE SET document_url=EXCLUDED.document_url, extra=EXCLUDED.extra`,
		guid, resourceLinkID, documentURL, string(ej))
	if err != nil {
		return nil, err
	}
	return &Assignment{
		ToolConsumerInstanceGUID: guid,
		ResourceLinkID:           resourceLinkID,
		DocumentURL:              documentURL,
		Extra:                    extra,
	}, nil
}

// Exists reports whether the placement is configured.
func (s *Store) Exists(ctx context.Context, guid, resourceLinkID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM assignments
		WHERE tool_consumer_instance_guid=$1 AND resource_link_id=$2`, guid, resourceLinkID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetMappedFileID records a course-copy file remapping and persists it.
func (s *Store) SetMappedFileID(ctx context.Context, a *Assignment, originalID, mappedID string) error {
	if a.Extra.CanvasFileMappings == nil {
		a.Extra.CanvasFileMappings = make(map[string]string)
	}
	a.Extra.CanvasFileMappings[originalID] = mappedID
	_, err := s.Set(ctx, a.ToolConsumerInstanceGUID, a.ResourceLinkID, a.DocumentURL, a.Extra)
	return err
}

// SetMappedPageID records a course-copy page remapping and persists it.
func (s *Store) SetMappedPageID(ctx context.Context, a *Assignment, originalID, mappedID string) error {
	if a.Extra.CanvasPageMappings == nil {
		a.Extra.CanvasPageMappings = make(map[string]string)
	}
	a.Extra.CanvasPageMappings[originalID] = mappedID
	_, err := s.Set(ctx, a.ToolConsumerInstanceGUID, a.ResourceLinkID, a.DocumentURL, a.Extra)
	return err
}
