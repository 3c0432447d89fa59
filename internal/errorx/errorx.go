// Package errorx defines the error kinds shared across the launch pipeline.
// Handlers match on these with errors.Is / errors.As to pick a response:
// a 403, a re-authorise redirect, or an error dialog.
package errorx

import (
	"errors"
	"fmt"
)

// Authentication failures.
var (
	ErrInvalidOAuthSignature = errors.New("invalid oauth 1.0a signature")
	ErrExpiredToken          = errors.New("bearer token expired")
	ErrInvalidSignature      = errors.New("bearer token signature invalid")
	ErrMalformedToken        = errors.New("bearer token malformed")
	ErrMissingClaim          = errors.New("bearer token missing required claim")
	ErrMissingBearer         = errors.New("no bearer token supplied")
	ErrStateExpired          = errors.New("oauth2 state expired")
	ErrStateMismatch         = errors.New("oauth2 state does not match session")
)

// Configuration failures.
var (
	ErrConsumerKeyUnknown = errors.New("unknown consumer key")
)

// External API failures.
var (
	// ErrAccessTokenMissing means there is no usable LMS access token for
	// this user: none stored, or the refresh also failed. Callers send the
	// user through the OAuth2 authorisation flow.
	ErrAccessTokenMissing = errors.New("lms access token missing or expired")
)

// Course-copy failures.
var (
	ErrCanvasFileNotFound = errors.New("canvas file not found in course")
	ErrCanvasPageNotFound = errors.New("canvas page not found in course")
)

// Provisioning failures.
var (
	ErrHAPINotFound = errors.New("hypothesis api: not found")
)

// Authorisation failures.
var (
	ErrNotAuthorizedToConfigure  = errors.New("not authorised to configure this assignment")
	ErrInstructorMustLaunchFirst = errors.New("instructor must launch the assignment first")
)

// ReusedConsumerKeyError is raised when a consumer key that is already bound
// to one tool_consumer_instance_guid launches with a different one. The
// launch is refused; both guids are shown in the error dialog.
type ReusedConsumerKeyError struct {
	ExistingGUID string
	NewGUID      string
}

func (e *ReusedConsumerKeyError) Error() string {
	return fmt.Sprintf("consumer key already bound to guid %q, launch presented %q", e.ExistingGUID, e.NewGUID)
}

// MissingParamError reports a required LTI launch parameter that was absent
// or empty.
type MissingParamError struct {
	Name string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("missing lti parameter %q", e.Name)
}

// HAPIError wraps a non-2xx response from the Hypothesis API.
type HAPIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HAPIError) Error() string {
	return fmt.Sprintf("hypothesis api: %s %s returned %d", e.Method, e.Path, e.Status)
}

func (e *HAPIError) Is(target error) bool {
	return target == ErrHAPINotFound && e.Status == 404
}

// ExternalRequestError wraps a failed call to an LMS API: transport errors,
// non-2xx statuses, and response bodies that failed schema validation.
type ExternalRequestError struct {
	Method           string
	URL              string
	Status           int
	Body             string
	ValidationErrors []string
	Cause            error
}

func (e *ExternalRequestError) Error() string {
	switch {
	case len(e.ValidationErrors) > 0:
		return fmt.Sprintf("lms api: %s %s: invalid response: %v", e.Method, e.URL, e.ValidationErrors)
	case e.Status != 0:
		return fmt.Sprintf("lms api: %s %s returned %d", e.Method, e.URL, e.Status)
	default:
		return fmt.Sprintf("lms api: %s %s: %v", e.Method, e.URL, e.Cause)
	}
}

func (e *ExternalRequestError) Unwrap() error { return e.Cause }

// ServerError reports whether the failure was on the LMS side (5xx).
func (e *ExternalRequestError) ServerError() bool { return e.Status >= 500 }
