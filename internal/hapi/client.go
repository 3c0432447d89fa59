package hapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/errorx"
)

// Client talks to the Hypothesis API with HTTP basic auth as the
// registered OAuth client for this tool's authority.
type Client struct {
	HTTP         *http.Client
	BaseURL      string // private API root, e.g. https://h.example.com/api
	ClientID     string
	ClientSecret string
	Authority    string
	Log          *zap.Logger
}

func NewClient(baseURL, clientID, clientSecret, authority string, log *zap.Logger) *Client {
	return &Client{
		HTTP:         &http.Client{Timeout: 9 * time.Second},
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Authority:    authority,
		Log:          log,
	}
}

// do sends one request; okStatuses are treated as success, everything else
// becomes a HAPIError carrying the status.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}, okStatuses ...int) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return &errorx.HAPIError{Method: method, Path: path, Status: 0, Body: err.Error()}
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)

	ok := res.StatusCode >= 200 && res.StatusCode <= 299
	for _, s := range okStatuses {
		if res.StatusCode == s {
			ok = true
		}
	}
	if !ok {
		return &errorx.HAPIError{Method: method, Path: path, Status: res.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 && res.StatusCode != 409 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &errorx.HAPIError{Method: method, Path: path, Status: res.StatusCode, Body: "undecodable body"}
		}
	}
	return nil
}

type userPayload struct {
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Authority   string     `json:"authority"`
	Identities  []identity `json:"identities"`
}

type identity struct {
	Provider         string `json:"provider"`
	ProviderUniqueID string `json:"provider_unique_id"`
}

// UpsertUser creates the user, treating "already exists" (409) as success.
func (c *Client) UpsertUser(ctx context.Context, u HUser, provider, providerUniqueID string) error {
	return c.do(ctx, http.MethodPost, "/users", userPayload{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Authority:   u.Authority,
		Identities:  []identity{{Provider: provider, ProviderUniqueID: providerUniqueID}},
	}, nil, http.StatusConflict)
}

type groupPayload struct {
	Name    string `json:"name"`
	GroupID string `json:"groupid,omitempty"`
}

// UpdateGroup renames an existing group. A 404 surfaces as
// errorx.ErrHAPINotFound for the bridge to act on.
func (c *Client) UpdateGroup(ctx context.Context, groupID, name string) error {
	return c.do(ctx, http.MethodPatch, "/groups/"+groupID, groupPayload{Name: name}, nil)
}

// CreateGroup creates the course group on behalf of creator.
func (c *Client) CreateGroup(ctx context.Context, groupID, name string, creator HUser) error {
	return c.doAs(ctx, creator, http.MethodPost, "/groups", groupPayload{Name: name, GroupID: groupID}, nil)
}

// AddGroupMember is idempotent on the server side.
func (c *Client) AddGroupMember(ctx context.Context, groupID string, u HUser) error {
	return c.do(ctx, http.MethodPost, "/groups/"+groupID+"/members/"+u.UserID(), nil, nil, http.StatusConflict)
}

// GetUser fetches the user record; used by diagnostics.
func (c *Client) GetUser(ctx context.Context, userID string) (HUser, error) {
	var out struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Authority   string `json:"authority"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, &out); err != nil {
		return HUser{}, err
	}
	return HUser{Authority: out.Authority, Username: out.Username, DisplayName: out.DisplayName}, nil
}

// doAs sends the request with an X-Forwarded-User header so the API acts
// as the given user. Group creation must run as the instructor, who
// becomes the group's creator.
func (c *Client) doAs(ctx context.Context, u HUser, method, path string, payload, out interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", u.UserID())

	res, err := c.HTTP.Do(req)
	if err != nil {
		return &errorx.HAPIError{Method: method, Path: path, Status: 0, Body: err.Error()}
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &errorx.HAPIError{Method: method, Path: path, Status: res.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
