package resolver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/edbridge/annolti/internal/assignment"
	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/lmsapi/canvas"
)

// CanvasFiles is the slice of canvas operations the copy heuristic needs;
// satisfied by *canvas.Client.
type CanvasFiles interface {
	ListFiles(ctx context.Context, courseID string) ([]canvas.File, error)
	PublicURL(ctx context.Context, fileID string) (string, error)
}

// CopyMapper recovers a working file id after a Canvas course copy, when
// the persisted id 404s in the new course.
type CopyMapper struct {
	Assignments *assignment.Store
	Files       *assignment.FileCache
}

// MapFile finds the copied file in the new course by display name and
// records the mapping so the next launch skips the search. Deterministic:
// re-running with the same course contents yields the same mapping.
func (m *CopyMapper) MapFile(ctx context.Context, api CanvasFiles, a *assignment.Assignment, consumerKey, courseID, fileID string) (string, error) {
	rec, err := m.Files.Get(ctx, consumerKey, fileID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		// Never saw the original file, so there is no name to match on.
		return "", errorx.ErrCanvasFileNotFound
	}

	files, err := api.ListFiles(ctx, courseID)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if err := m.Files.Upsert(ctx, assignment.FileRecord{
			ConsumerKey: consumerKey,
			CourseID:    courseID,
			FileID:      strconv.FormatInt(f.ID, 10),
			DisplayName: f.DisplayName,
			UpdatedAt:   f.UpdatedAt,
		}); err != nil {
			return "", err
		}
	}

	match, ok := canvas.FindMatchingFile(files, rec.DisplayName)
	if !ok {
		return "", errorx.ErrCanvasFileNotFound
	}
	mappedID := strconv.FormatInt(match.ID, 10)
	if a != nil {
		if err := m.Assignments.SetMappedFileID(ctx, a, fileID, mappedID); err != nil {
			return "", fmt.Errorf("record file mapping: %w", err)
		}
	}
	return mappedID, nil
}
