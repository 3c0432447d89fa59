package lti

import (
	"net/url"
	"strings"

	"github.com/edbridge/annolti/internal/errorx"
)

// requiredParams must be present and non-empty on every launch POST.
var requiredParams = []string{
	"oauth_consumer_key",
	"oauth_signature",
	"oauth_nonce",
	"oauth_timestamp",
	"user_id",
	"roles",
	"context_id",
	"resource_link_id",
	"tool_consumer_instance_guid",
}

// LaunchParams is the parsed form body of an LTI 1.1 launch. Optional
// fields are zero-valued when absent.
type LaunchParams struct {
	OAuthConsumerKey         string
	UserID                   string
	Roles                    string
	ContextID                string
	ContextTitle             string
	ResourceLinkID           string
	ToolConsumerInstanceGUID string

	LISPersonNameFull   string
	LISPersonNameGiven  string
	LISPersonNameFamily string

	LISOutcomeServiceURL string
	LISResultSourcedID   string
	ProductFamilyCode    string

	CustomCanvasCourseID  string
	CustomCanvasAPIDomain string

	// Course-copy aliases: a new resource_link_id can point back at the
	// placement it was copied from.
	ResourceLinkIDHistory   string
	D2LCopiedResourceLinkID string

	// Content selection, carried on deep-linked launches.
	URL             string
	CanvasFile      bool
	FileID          string
	VitalSourceBook string
	CFI             string

	LaunchPresentationReturnURL string
	FocusedUser                 string
}

// ParseLaunch validates the required launch fields and extracts the rest.
// The oauth_* values stay in the form for signature verification; only the
// LTI payload is lifted out here.
func ParseLaunch(form url.Values) (LaunchParams, error) {
	for _, name := range requiredParams {
		if strings.TrimSpace(form.Get(name)) == "" {
			return LaunchParams{}, &errorx.MissingParamError{Name: name}
		}
	}
	return parseOptional(form)
}

func parseOptional(form url.Values) (LaunchParams, error) {
	p := LaunchParams{
		OAuthConsumerKey:         form.Get("oauth_consumer_key"),
		UserID:                   form.Get("user_id"),
		Roles:                    form.Get("roles"),
		ContextID:                form.Get("context_id"),
		ContextTitle:             form.Get("context_title"),
		ResourceLinkID:           form.Get("resource_link_id"),
		ToolConsumerInstanceGUID: form.Get("tool_consumer_instance_guid"),

		LISPersonNameFull:   form.Get("lis_person_name_full"),
		LISPersonNameGiven:  form.Get("lis_person_name_given"),
		LISPersonNameFamily: form.Get("lis_person_name_family"),

		LISOutcomeServiceURL: form.Get("lis_outcome_service_url"),
		LISResultSourcedID:   form.Get("lis_result_sourcedid"),
		ProductFamilyCode:    form.Get("tool_consumer_info_product_family_code"),

		CustomCanvasCourseID:  form.Get("custom_canvas_course_id"),
		CustomCanvasAPIDomain: form.Get("custom_canvas_api_domain"),

		ResourceLinkIDHistory:   form.Get("resource_link_id_history"),
		D2LCopiedResourceLinkID: form.Get("ext_d2l_copied_resource_link_id"),

		URL:             form.Get("url"),
		CanvasFile:      strings.EqualFold(form.Get("canvas_file"), "true"),
		FileID:          form.Get("file_id"),
		VitalSourceBook: form.Get("vitalsource_book"),
		CFI:             form.Get("cfi"),

		LaunchPresentationReturnURL: form.Get("launch_presentation_return_url"),
		FocusedUser:                 form.Get("focused_user"),
	}
	return p, nil
}

// ParseRelaunch rebuilds launch params from a form the picker re-carried.
// The post is authenticated by a bearer token, not a signature, so the
// oauth_* fields are not required; identity comes from u.
func ParseRelaunch(form url.Values, u User) (LaunchParams, error) {
	for _, name := range []string{"context_id", "resource_link_id"} {
		if strings.TrimSpace(form.Get(name)) == "" {
			return LaunchParams{}, &errorx.MissingParamError{Name: name}
		}
	}
	p, _ := parseOptional(form)
	p.OAuthConsumerKey = u.OAuthConsumerKey
	p.UserID = u.UserID
	p.Roles = u.Roles
	p.ToolConsumerInstanceGUID = u.ToolConsumerInstanceGUID
	return p, nil
}

// User builds the request-scoped identity from the launch payload.
func (p LaunchParams) User() User {
	return User{
		UserID:                   p.UserID,
		OAuthConsumerKey:         p.OAuthConsumerKey,
		Roles:                    p.Roles,
		ToolConsumerInstanceGUID: p.ToolConsumerInstanceGUID,
		DisplayName:              p.DisplayName(),
	}
}

// DisplayName derives the person's name from the LIS fields: the full name
// if given, else "given family", else "Anonymous". The result is trimmed;
// truncation to the H limit happens at provisioning time.
func (p LaunchParams) DisplayName() string {
	name := strings.TrimSpace(p.LISPersonNameFull)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(p.LISPersonNameGiven) + " " + strings.TrimSpace(p.LISPersonNameFamily))
	}
	if name == "" {
		name = "Anonymous"
	}
	return name
}
