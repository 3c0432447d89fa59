// Package vitalsource handles the synthetic vitalsource:// document URLs
// produced when an instructor picks a VitalSource book.
package vitalsource

import (
	"fmt"
	"net/url"
	"strings"
)

// BookURL builds the synthetic document URL persisted for a picked book.
// The CFI addresses the chapter within the book.
func BookURL(bookID, cfi string) string {
	u := fmt.Sprintf("vitalsource://book/bookID/%s", bookID)
	if cfi != "" {
		u += "/cfi/" + strings.TrimPrefix(cfi, "/")
	}
	return u
}

// Parse splits a synthetic book URL back into its parts.
func Parse(raw string) (bookID, cfi string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "vitalsource" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// host is "book", path is bookID/<id>[/cfi/<cfi...>]
	if u.Host != "book" || len(parts) < 2 || parts[0] != "bookID" {
		return "", "", false
	}
	bookID = parts[1]
	if len(parts) >= 4 && parts[2] == "cfi" {
		cfi = "/" + strings.Join(parts[3:], "/")
	}
	return bookID, cfi, true
}
