package grading

import (
	"context"

	"github.com/edbridge/annolti/internal/hapi"
	"github.com/edbridge/annolti/internal/lti"
)

// gradableProducts is the allow-list of tool consumers whose grading runs
// through this tool's outcomes proxy. Canvas grading goes through
// SpeedGrader directly and must not be recorded here.
var gradableProducts = map[string]bool{
	"BlackboardLearn": true,
	"moodle":          true,
}

// Allowed reports whether the product family participates in grading.
func Allowed(productFamilyCode string) bool {
	return gradableProducts[productFamilyCode]
}

// Recorder applies the recording rules on top of the store.
type Recorder struct {
	Store *Store
}

// Record upserts the outcome tuple for a student launch. Instructor
// launches, launches without the LIS fields, and products outside the
// allow-list record nothing; returns true when a row was written.
func (r *Recorder) Record(ctx context.Context, u lti.User, p lti.LaunchParams, hu hapi.HUser) (bool, error) {
	if u.IsInstructor() {
		return false, nil
	}
	if p.LISResultSourcedID == "" || p.LISOutcomeServiceURL == "" {
		return false, nil
	}
	if !Allowed(p.ProductFamilyCode) {
		return false, nil
	}
	err := r.Store.Upsert(ctx, Info{
		ConsumerKey:          u.OAuthConsumerKey,
		UserID:               u.UserID,
		ContextID:            p.ContextID,
		ResourceLinkID:       p.ResourceLinkID,
		LISResultSourcedID:   p.LISResultSourcedID,
		LISOutcomeServiceURL: p.LISOutcomeServiceURL,
		HUsername:            hu.Username,
		HDisplayName:         hu.DisplayName,
		ProductFamilyCode:    p.ProductFamilyCode,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
