// Package resolver decides which document a launch displays. The launch
// params, the assignment store, and the course-copy aliases are consulted
// in a fixed priority order; deep-linked params always beat stored rows.
package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/edbridge/annolti/internal/assignment"
	"github.com/edbridge/annolti/internal/lti"
	"github.com/edbridge/annolti/internal/lmsapi/vitalsource"
)

// Mode names the way the document URL was determined.
type Mode string

const (
	ModeURL         Mode = "url-configured"
	ModeCanvasFile  Mode = "canvas-file"
	ModeVitalSource Mode = "vitalsource"
	ModeDB          Mode = "db-configured"
	ModeCopied      Mode = "copied"
	ModePicker      Mode = "unconfigured-instructor"
	ModeRefused     Mode = "unconfigured-learner"
)

// Resolution is the outcome of resolving one launch.
type Resolution struct {
	Mode         Mode
	DocumentURL  string
	CanvasFileID string
	Assignment   *assignment.Assignment
}

type Resolver struct {
	Assignments *assignment.Store
}

func New(assignments *assignment.Store) *Resolver {
	return &Resolver{Assignments: assignments}
}

// Resolve picks exactly one mode for the launch. The 1-2-3 ordering is
// significant: a deep-linked URL must never be overridden by a stale row.
func (r *Resolver) Resolve(ctx context.Context, p lti.LaunchParams, isInstructor bool) (Resolution, error) {
	if p.URL != "" {
		return Resolution{Mode: ModeURL, DocumentURL: FixDoubleEncoding(p.URL)}, nil
	}
	if p.CanvasFile && p.FileID != "" {
		return Resolution{Mode: ModeCanvasFile, CanvasFileID: p.FileID}, nil
	}
	if p.VitalSourceBook != "" {
		return Resolution{Mode: ModeVitalSource, DocumentURL: vitalsource.BookURL(p.VitalSourceBook, p.CFI)}, nil
	}

	guid := p.ToolConsumerInstanceGUID
	a, err := r.Assignments.Get(ctx, guid, p.ResourceLinkID)
	if err != nil {
		return Resolution{}, err
	}
	if a != nil {
		return resolutionFor(ModeDB, a), nil
	}

	// Course copy: the launch can carry the placement id it was copied
	// from. A hit configures the new placement as an alias of the old.
	for _, alias := range []string{p.D2LCopiedResourceLinkID, p.ResourceLinkIDHistory} {
		if alias == "" || alias == p.ResourceLinkID {
			continue
		}
		orig, err := r.Assignments.Get(ctx, guid, alias)
		if err != nil {
			return Resolution{}, err
		}
		if orig == nil {
			continue
		}
		copied, err := r.Assignments.Set(ctx, guid, p.ResourceLinkID, orig.DocumentURL, orig.Extra)
		if err != nil {
			return Resolution{}, err
		}
		return resolutionFor(ModeCopied, copied), nil
	}

	if isInstructor {
		return Resolution{Mode: ModePicker}, nil
	}
	return Resolution{Mode: ModeRefused}, nil
}

func resolutionFor(mode Mode, a *assignment.Assignment) Resolution {
	res := Resolution{Mode: mode, DocumentURL: a.DocumentURL, Assignment: a}
	if id, ok := CanvasFileIDFromURL(a.DocumentURL); ok {
		res.CanvasFileID = a.MappedFileID(id)
	}
	return res
}

// FixDoubleEncoding undoes one extra layer of percent-encoding that some
// LMSs apply when persisting the deep-linked url param. Detection: the
// scheme separator arrives encoded (":" or "/" as %3A / %2F).
func FixDoubleEncoding(raw string) string {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "%3a%2f%2f") ||
		(strings.Contains(lower, "%3a") && !strings.Contains(raw, "://")) {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			return decoded
		}
	}
	return raw
}

// CanvasFileIDFromURL recognises the synthetic canvas://file/<id> form a
// picked Canvas file is persisted as.
func CanvasFileIDFromURL(doc string) (string, bool) {
	const prefix = "canvas://file/"
	if strings.HasPrefix(doc, prefix) {
		return strings.TrimPrefix(doc, prefix), true
	}
	return "", false
}

// CanvasFileURL builds the synthetic document URL for a picked file.
func CanvasFileURL(fileID string) string {
	return "canvas://file/" + fileID
}
