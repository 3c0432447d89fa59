package hapi

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/edbridge/annolti/internal/lti"
)

func TestUsernameGolden(t *testing.T) {
	// Known pair from a Canvas install; the derivation must never change or
	// every existing user loses their annotations.
	got := Username("VCSy*G1u3:canvas-lms", "4533***70d9")
	assert.Equal(t, "2569ad7b99f316ecc7dfee5c0c801c", got)
}

func TestUsernameStableAndDistinct(t *testing.T) {
	a := Username("guid-1", "user-1")
	assert.Equal(t, a, Username("guid-1", "user-1"))
	assert.Len(t, a, 30)
	assert.NotEqual(t, a, Username("guid-2", "user-1"))
	assert.NotEqual(t, a, Username("guid-1", "user-2"))
}

func TestGroupIdentifiers(t *testing.T) {
	apid := AuthorityProvidedID("guid-1", "course-1")
	assert.Len(t, apid, 40)
	assert.Equal(t, apid, AuthorityProvidedID("guid-1", "course-1"))
	assert.Equal(t, "group:"+apid+"@lms.example.org", GroupID(apid, "lms.example.org"))
}

func TestTruncateProperties(t *testing.T) {
	base := "máté " // includes a multi-byte rune and trailing whitespace when repeated
	for n := 0; n <= 100; n++ {
		in := strings.Repeat(base, n/4) + strings.Repeat("a", n%4)
		for _, max := range []int{groupNameMax, displayNameMax} {
			out := truncate(in, max)
			runesIn := utf8.RuneCountInString(in)
			runesOut := utf8.RuneCountInString(out)

			assert.LessOrEqual(t, runesOut, max, "input %q max %d", in, max)
			if runesIn <= max {
				assert.Equal(t, in, out, "short input must pass through")
			} else {
				assert.True(t, strings.HasSuffix(out, "…"), "long input %q ends with ellipsis", in)
				assert.False(t, strings.HasSuffix(strings.TrimSuffix(out, "…"), " "),
					"no whitespace before the ellipsis")
			}
		}
	}
}

func TestGroupNameFromTitle(t *testing.T) {
	assert.Equal(t, "Intro to Biology", GroupName("  Intro to Biology  "))
	long := "A Very Long Course Title That Never Ends"
	got := GroupName(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 25)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestNewHUser(t *testing.T) {
	u := lti.User{
		UserID:                   "u-1",
		ToolConsumerInstanceGUID: "guid-1",
		DisplayName:              "Ada Lovelace",
	}
	hu := NewHUser("lms.example.org", u)
	assert.Equal(t, Username("guid-1", "u-1"), hu.Username)
	assert.Equal(t, "Ada Lovelace", hu.DisplayName)
	assert.Equal(t, "acct:"+hu.Username+"@lms.example.org", hu.UserID())

	anon := NewHUser("lms.example.org", lti.User{UserID: "u-2", ToolConsumerInstanceGUID: "guid-1"})
	assert.Equal(t, "Anonymous", anon.DisplayName)
}
