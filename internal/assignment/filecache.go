package assignment

import (
	"context"
	"database/sql"
	"errors"
)

// FileRecord remembers a file seen while listing an LMS course, so the
// course-copy heuristic can recover the display name of a file id that no
// longer resolves.
type FileRecord struct {
	ConsumerKey string
	CourseID    string
	FileID      string
	DisplayName string
	UpdatedAt   string
}

type FileCache struct {
	db *sql.DB
}

func NewFileCache(db *sql.DB) *FileCache { return &FileCache{db: db} }

// Upsert refreshes the record for one file.
func (c *FileCache) Upsert(ctx context.Context, rec FileRecord) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO file_records
		(consumer_key, course_id, file_id, display_name, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (consumer_key, file_id)
		DO UPDATE SET course_id=EXCLUDED.course_id, display_name=EXCLUDED.display_name, updated_at=EXCLUDED.updated_at`,
		rec.ConsumerKey, rec.CourseID, rec.FileID, rec.DisplayName, rec.UpdatedAt)
	return err
}

// Get returns the recorded file, or nil when it was never seen.
func (c *FileCache) Get(ctx context.Context, consumerKey, fileID string) (*FileRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT consumer_key, course_id, file_id, display_name, updated_at
		FROM file_records WHERE consumer_key=$1 AND file_id=$2`, consumerKey, fileID)
	var rec FileRecord
	if err := row.Scan(&rec.ConsumerKey, &rec.CourseID, &rec.FileID, &rec.DisplayName, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
