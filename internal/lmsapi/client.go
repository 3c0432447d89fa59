// Package lmsapi is the LMS-agnostic HTTP client core: it injects the
// user's access token, follows Link-header pagination, validates response
// bodies, and retries exactly once through a token refresh on 401.
package lmsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/lmsoauth"
	"github.com/edbridge/annolti/internal/metrics"
)

const (
	// ReadTimeout is the established outbound timeout. It surfaces as a
	// retryable error; it does not cancel work the LMS already accepted.
	ReadTimeout = 9 * time.Second

	// PerPage is injected on paginating endpoints.
	PerPage = 1000

	// MaxPages bounds pagination to keep latency and memory in check.
	// Hitting the ceiling returns the pages fetched so far without error.
	MaxPages = 25
)

// Validator lets response types declare their required fields. Decoded
// responses that implement it are checked before being returned.
type Validator interface {
	Validate() error
}

// Unauthorized decides whether a response means "access token rejected".
// Plain 401s always count; some LMSs hide it in a 200/4xx body.
type Unauthorized func(status int, body []byte) bool

// Client calls one LMS on behalf of one LTI user.
type Client struct {
	HTTP        *http.Client
	BaseURL     string // scheme://host/prefix, e.g. https://canvas.example.com/api/v1
	Tokens      *lmsoauth.Store
	ConsumerKey string
	UserID      string

	// TokenURL and credentials drive the refresh POST. Empty TokenURL
	// disables refresh; a 401 then surfaces immediately.
	TokenURL     string
	ClientID     string
	ClientSecret string

	// Is401 augments the plain status check; may be nil.
	Is401 Unauthorized

	Log *zap.Logger
}

// Request describes one logical call. Many marks endpoints whose result is
// a JSON array assembled across pages.
type Request struct {
	Method string
	Path   string // relative to BaseURL, leading slash optional
	Params url.Values
	Many   bool
}

// Do performs the call and decodes the (possibly paginated) body into out.
// For Many requests out must point at a slice.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	body, err := c.fetch(ctx, req, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &errorx.ExternalRequestError{
			Method: req.Method, URL: c.requestURL(req),
			ValidationErrors: []string{err.Error()},
		}
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return &errorx.ExternalRequestError{
				Method: req.Method, URL: c.requestURL(req),
				ValidationErrors: []string{err.Error()},
			}
		}
	}
	return nil
}

func (c *Client) requestURL(req Request) string {
	u := strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	params := url.Values{}
	for k, vs := range req.Params {
		params[k] = vs
	}
	if req.Many {
		params.Set("per_page", strconv.Itoa(PerPage))
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// fetch returns the raw JSON body; for Many requests it is the
// concatenation of every page's array elements.
func (c *Client) fetch(ctx context.Context, req Request, allowRefresh bool) ([]byte, error) {
	token, err := c.Tokens.Get(ctx, c.ConsumerKey, c.UserID)
	if err != nil {
		return nil, err
	}

	next := c.requestURL(req)
	var pages [][]json.RawMessage
	for page := 0; next != ""; page++ {
		if page == MaxPages {
			break
		}
		status, body, link, err := c.send(ctx, req.Method, next, token.AccessToken)
		if err != nil {
			return nil, &errorx.ExternalRequestError{Method: req.Method, URL: next, Cause: err}
		}

		if status == http.StatusUnauthorized || (c.Is401 != nil && c.Is401(status, body)) {
			if !allowRefresh {
				return nil, errorx.ErrAccessTokenMissing
			}
			if err := c.refresh(ctx, token); err != nil {
				return nil, err
			}
			// Refresh is attempted at most once per logical request.
			return c.fetch(ctx, req, false)
		}
		if status < 200 || status > 299 {
			return nil, &errorx.ExternalRequestError{Method: req.Method, URL: next, Status: status, Body: string(body)}
		}

		if !req.Many {
			if link != "" {
				return nil, &errorx.ExternalRequestError{
					Method: req.Method, URL: next,
					ValidationErrors: []string{"unexpected pagination on a single-object endpoint"},
				}
			}
			return body, nil
		}

		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, &errorx.ExternalRequestError{
				Method: req.Method, URL: next,
				ValidationErrors: []string{"expected a JSON array: " + err.Error()},
			}
		}
		pages = append(pages, items)
		next = link
	}

	var all []json.RawMessage
	for _, p := range pages {
		all = append(all, p...)
	}
	return joinArray(all), nil
}

func (c *Client) send(ctx context.Context, method, rawurl, accessToken string) (int, []byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawurl, nil)
	if err != nil {
		return 0, nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, "", err
	}
	if host := req.URL.Host; host != "" {
		metrics.LMSRequests.WithLabelValues(host, strconv.Itoa(res.StatusCode)).Inc()
	}
	return res.StatusCode, body, nextLink(res.Header.Get("Link")), nil
}

// refresh POSTs grant_type=refresh_token and persists the new tokens.
// Failure of any kind maps to ErrAccessTokenMissing so the caller can
// send the user back through the authorisation flow.
func (c *Client) refresh(ctx context.Context, token lmsoauth.Token) error {
	if c.TokenURL == "" || token.RefreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues("unavailable").Inc()
		return errorx.ErrAccessTokenMissing
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient().Do(req)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return errorx.ErrAccessTokenMissing
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		if c.Log != nil {
			c.Log.Warn("token refresh rejected",
				zap.String("token_url", c.TokenURL), zap.Int("status", res.StatusCode))
		}
		return errorx.ErrAccessTokenMissing
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		metrics.TokenRefreshes.WithLabelValues("invalid").Inc()
		return errorx.ErrAccessTokenMissing
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	// An omitted refresh_token retains the stored one (the store handles
	// the empty value).
	return c.Tokens.Save(ctx, c.ConsumerKey, c.UserID, tr.AccessToken, tr.RefreshToken, tr.ExpiresIn)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

var nextLinkRe = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextLink extracts the rel="next" target from a Link header, if any.
func nextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		if m := nextLinkRe.FindStringSubmatch(part); m != nil {
			return m[1]
		}
	}
	return ""
}

func joinArray(items []json.RawMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(it)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// IsNotFound reports whether err is an LMS response with status 404, which
// the course-copy path treats as "file moved".
func IsNotFound(err error) bool {
	var ere *errorx.ExternalRequestError
	return errors.As(err, &ere) && ere.Status == http.StatusNotFound
}
