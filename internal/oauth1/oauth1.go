// Package oauth1 implements the OAuth 1.0a HMAC-SHA1 signature scheme of
// RFC 5849, on both sides: verifying signed LTI launch POSTs from an LMS,
// and signing outbound LIS outcome requests.
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edbridge/annolti/internal/errorx"
)

// MaxTimestampAge bounds how stale an oauth_timestamp may be. LMS clocks
// drift, so the window is generous.
const MaxTimestampAge = 10 * time.Minute

// percentEncode implements RFC 5849 §3.6: unreserved characters pass
// through, everything else is %XX uppercase hex.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// baseURI normalises the request URL per RFC 5849 §3.4.1.2: lowercase
// scheme and host, default ports dropped, query and fragment removed.
func baseURI(rawurl string) (string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path, nil
}

// BaseString builds the signature base string over method, URL, and the
// combined query + form parameters. oauth_signature is excluded.
func BaseString(method, rawurl string, params url.Values) (string, error) {
	uri, err := baseURI(rawurl)
	if err != nil {
		return "", err
	}

	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range params {
		if k == "oauth_signature" {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
		}
	}
	if u, err := url.Parse(rawurl); err == nil {
		for k, vs := range u.Query() {
			if k == "oauth_signature" {
				continue
			}
			for _, v := range vs {
				pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	normalized := strings.Join(parts, "&")

	return strings.ToUpper(method) + "&" + percentEncode(uri) + "&" + percentEncode(normalized), nil
}

// Sign computes the HMAC-SHA1 signature for the request. tokenSecret is
// empty for two-legged LTI requests.
func Sign(method, rawurl string, params url.Values, consumerSecret, tokenSecret string) (string, error) {
	base, err := BaseString(method, rawurl, params)
	if err != nil {
		return "", err
	}
	key := percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over the received parameters and compares
// it constant-time against oauth_signature. The signature must verify
// before the nonce is consumed: an unsigned request carrying someone
// else's (nonce, timestamp) must not poison the replay cache against the
// legitimately signed one.
func Verify(method, rawurl string, params url.Values, consumerSecret string, replay Replay) error {
	if params.Get("oauth_signature_method") != "HMAC-SHA1" {
		return errorx.ErrInvalidOAuthSignature
	}
	want, err := Sign(method, rawurl, params, consumerSecret, "")
	if err != nil {
		return errorx.ErrInvalidOAuthSignature
	}
	got := params.Get("oauth_signature")
	if !hmac.Equal([]byte(want), []byte(got)) {
		return errorx.ErrInvalidOAuthSignature
	}
	if replay != nil {
		ts, err := strconv.ParseInt(params.Get("oauth_timestamp"), 10, 64)
		if err != nil {
			return errorx.ErrInvalidOAuthSignature
		}
		ok, err := replay.Use(params.Get("oauth_nonce"), time.Unix(ts, 0))
		if err != nil {
			return err
		}
		if !ok {
			return errorx.ErrInvalidOAuthSignature
		}
	}
	return nil
}

// AuthorizationHeader signs the request and renders the OAuth parameters as
// an Authorization header value, for outbound calls (LIS outcomes).
func AuthorizationHeader(method, rawurl string, extra url.Values, consumerKey, consumerSecret, nonce string, now time.Time) (string, error) {
	params := url.Values{}
	params.Set("oauth_consumer_key", consumerKey)
	params.Set("oauth_nonce", nonce)
	params.Set("oauth_signature_method", "HMAC-SHA1")
	params.Set("oauth_timestamp", strconv.FormatInt(now.Unix(), 10))
	params.Set("oauth_version", "1.0")
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	sig, err := Sign(method, rawurl, params, consumerSecret, "")
	if err != nil {
		return "", err
	}
	params.Set("oauth_signature", sig)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(params.Get(k))))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}
