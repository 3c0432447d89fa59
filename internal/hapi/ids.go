// Package hapi provisions users and groups in the Hypothesis service and
// derives the deterministic identifiers that tie LTI identities to H ones.
package hapi

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/edbridge/annolti/internal/lti"
)

const (
	usernameLen    = 30
	displayNameMax = 30
	groupNameMax   = 25
)

// HUser is the Hypothesis-side identity for an LTI user.
type HUser struct {
	Authority   string
	Username    string
	DisplayName string
}

// UserID is the acct: form H APIs address users by.
func (u HUser) UserID() string {
	return "acct:" + u.Username + "@" + u.Authority
}

// Username derives the stable 30-char lowercase hex username for an LTI
// identity. Same inputs always yield the same username, across runs and
// processes.
func Username(toolConsumerInstanceGUID, userID string) string {
	sum := sha1.Sum([]byte(toolConsumerInstanceGUID + userID))
	return hex.EncodeToString(sum[:])[:usernameLen]
}

// AuthorityProvidedID derives the stable id for a course group.
func AuthorityProvidedID(toolConsumerInstanceGUID, contextID string) string {
	sum := sha1.Sum([]byte(toolConsumerInstanceGUID + contextID))
	return hex.EncodeToString(sum[:])
}

// GroupID is the group: form H APIs address groups by.
func GroupID(authorityProvidedID, authority string) string {
	return "group:" + authorityProvidedID + "@" + authority
}

// GroupName turns a course title into the group's display name.
func GroupName(contextTitle string) string {
	return truncate(strings.TrimSpace(contextTitle), groupNameMax)
}

// NewHUser builds the full H identity for a launch user.
func NewHUser(authority string, u lti.User) HUser {
	name := strings.TrimSpace(u.DisplayName)
	if name == "" {
		name = "Anonymous"
	}
	return HUser{
		Authority:   authority,
		Username:    Username(u.ToolConsumerInstanceGUID, u.UserID),
		DisplayName: truncate(name, displayNameMax),
	}
}

// truncate enforces a maximum length in code points: strings at or under
// max pass through, longer ones become the first max-1 code points with
// trailing whitespace stripped plus U+2026, keeping a fixed maximum width
// for downstream systems.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	head := strings.TrimRight(string(runes[:max-1]), " \t\n")
	return head + "…"
}
