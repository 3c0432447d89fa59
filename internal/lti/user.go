// Package lti holds the request-scoped values derived from an LTI 1.1
// launch: the authenticated user and the parsed launch parameters.
package lti

import "strings"

// User identifies the person behind a request. It is constructed once per
// request (from a signed launch, a bearer token, or an OAuth2 state param)
// and never persisted.
type User struct {
	UserID                   string `json:"user_id"`
	OAuthConsumerKey         string `json:"oauth_consumer_key"`
	Roles                    string `json:"roles"`
	ToolConsumerInstanceGUID string `json:"tool_consumer_instance_guid"`
	DisplayName              string `json:"display_name"`
}

// instructorRoles are matched as substrings of the comma-joined roles value.
// LTI role values can be bare names ("Instructor") or full URNs
// ("urn:lti:role:ims/lis/Instructor"); substring matching covers both.
var instructorRoles = []string{"administrator", "instructor", "teachingassistant"}

// IsInstructor reports whether any launch role grants instructor rights.
func (u User) IsInstructor() bool {
	roles := strings.ToLower(u.Roles)
	for _, r := range instructorRoles {
		if strings.Contains(roles, r) {
			return true
		}
	}
	return false
}

// IsLearner reports whether the user launched with a learner/student role.
func (u User) IsLearner() bool {
	roles := strings.ToLower(u.Roles)
	return strings.Contains(roles, "learner") || strings.Contains(roles, "student")
}
