// Package jsconfig assembles the configuration object embedded in launch
// response HTML for the browser-side client. Sections accumulate on the
// builder; Build returns the immutable object that gets serialised.
package jsconfig

import (
	"net/url"
	"time"

	"github.com/edbridge/annolti/internal/grading"
	"github.com/edbridge/annolti/internal/hapi"
)

// Modes the client understands.
const (
	ModeBasicLaunch          = "basic-lti-launch"
	ModeContentItemSelection = "content-item-selection"
	ModeOAuth2RedirectError  = "oauth2-redirect-error"
	ModeErrorDialog          = "error-dialog"
)

// Config is the serialised object. Field names are part of the contract
// with the JS client.
type Config struct {
	Mode             string            `json:"mode"`
	AuthToken        string            `json:"authToken,omitempty"`
	HypothesisClient *HypothesisClient `json:"hypothesisClient,omitempty"`
	URLs             URLs              `json:"urls"`
	RPCServer        *RPCServer        `json:"rpcServer,omitempty"`
	SubmissionParams *SubmissionParams `json:"submissionParams,omitempty"`
	Grading          *Grading          `json:"grading,omitempty"`
	FilePicker       *FilePicker       `json:"filePicker,omitempty"`
	ErrorDialog      *ErrorDialog      `json:"errorDialog,omitempty"`
}

// FilePicker carries the third-party picker credentials the content
// selection UI needs.
type FilePicker struct {
	Google *GooglePicker `json:"google,omitempty"`
}

type GooglePicker struct {
	ClientID     string `json:"clientId"`
	DeveloperKey string `json:"developerKey"`
	Origin       string `json:"origin"`
}

type HypothesisClient struct {
	Services []Service `json:"services"`
	Focus    *Focus    `json:"focus,omitempty"`
}

// Focus narrows the client to one user's annotations, for SpeedGrader-style
// single-submission views.
type Focus struct {
	User FocusedUser `json:"user"`
}

type FocusedUser struct {
	Username  string `json:"username"`
	Authority string `json:"authority"`
}

type Service struct {
	APIURL     string   `json:"apiUrl"`
	Authority  string   `json:"authority"`
	GrantToken string   `json:"grantToken"`
	Groups     []string `json:"groups"`
}

type URLs struct {
	ViaURL       string `json:"via_url,omitempty"`
	AuthorizeURL string `json:"authorize_url,omitempty"`
}

type RPCServer struct {
	AllowedOrigins []string `json:"allowedOrigins"`
}

// SubmissionParams is attached only when grading applies to the launch.
type SubmissionParams struct {
	HUsername            string `json:"h_username"`
	LISResultSourcedID   string `json:"lis_result_sourcedid"`
	LISOutcomeServiceURL string `json:"lis_outcome_service_url"`
	DocumentURL          string `json:"document_url,omitempty"`
	CanvasFileID         string `json:"canvas_file_id,omitempty"`
}

type Grading struct {
	Students []grading.StudentGrading `json:"students"`
}

type ErrorDialog struct {
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Builder accumulates sections for one response.
type Builder struct {
	apiURLPublic     string
	authority        string
	jwtClientID      string
	jwtClientSecret  string
	viaBase          string
	frameHost        string
	publicOrigin     string
	rpcAllowedOrigin []string
	now              func() time.Time

	googleClientID     string
	googleDeveloperKey string
	focusUsername      string

	cfg Config
}

func NewBuilder(apiURLPublic, authority, jwtClientID, jwtClientSecret, viaBase, publicURL string, rpcAllowedOrigins []string) *Builder {
	frameHost := publicURL
	if u, err := url.Parse(publicURL); err == nil && u.Host != "" {
		frameHost = u.Host
	}
	return &Builder{
		apiURLPublic:     apiURLPublic,
		authority:        authority,
		jwtClientID:      jwtClientID,
		jwtClientSecret:  jwtClientSecret,
		viaBase:          viaBase,
		frameHost:        frameHost,
		publicOrigin:     publicURL,
		rpcAllowedOrigin: rpcAllowedOrigins,
		now:              time.Now,
		cfg:              Config{Mode: ModeBasicLaunch},
	}
}

func (b *Builder) Mode(mode string) *Builder {
	b.cfg.Mode = mode
	return b
}

func (b *Builder) AuthToken(token string) *Builder {
	b.cfg.AuthToken = token
	return b
}

// WithGooglePicker supplies the Google Picker credentials. They are
// attached only to picker-mode responses, at Build time.
func (b *Builder) WithGooglePicker(clientID, developerKey string) *Builder {
	b.googleClientID = clientID
	b.googleDeveloperKey = developerKey
	return b
}

// FocusUser narrows the client to one student's annotations. Used on
// instructor launches that carry a focused_user param (SpeedGrader).
func (b *Builder) FocusUser(username string) *Builder {
	b.focusUsername = username
	return b
}

// HypothesisService configures the client to log in as the h-user and
// focus its course group.
func (b *Builder) HypothesisService(u hapi.HUser, groupID string) error {
	grant, err := hapi.GrantToken(b.jwtClientID, b.jwtClientSecret, b.apiURLPublic, u, b.now())
	if err != nil {
		return err
	}
	b.cfg.HypothesisClient = &HypothesisClient{Services: []Service{{
		APIURL:     b.apiURLPublic,
		Authority:  b.authority,
		GrantToken: grant,
		Groups:     []string{groupID},
	}}}
	return nil
}

// Document wraps the document in Via and records it as the launch target.
func (b *Builder) Document(docURL string) error {
	via, err := ViaURL(b.viaBase, docURL, b.frameHost)
	if err != nil {
		return err
	}
	b.cfg.URLs.ViaURL = via
	return nil
}

func (b *Builder) AuthorizeURL(u string) *Builder {
	b.cfg.URLs.AuthorizeURL = u
	return b
}

func (b *Builder) Submission(sp SubmissionParams) *Builder {
	b.cfg.SubmissionParams = &sp
	return b
}

// Students attaches the grading roster. The store keeps bare h usernames;
// the client addresses users by their acct: identifier, so it is composed
// here.
func (b *Builder) Students(students []grading.StudentGrading) *Builder {
	out := make([]grading.StudentGrading, len(students))
	for i, sg := range students {
		sg.UserID = hapi.HUser{Authority: b.authority, Username: sg.UserID}.UserID()
		out[i] = sg
	}
	b.cfg.Grading = &Grading{Students: out}
	return b
}

func (b *Builder) Error(code string, details map[string]string) *Builder {
	b.cfg.Mode = ModeErrorDialog
	b.cfg.ErrorDialog = &ErrorDialog{Code: code, Details: details}
	return b
}

// Build finalises the object. The RPC origin list is attached here so
// every mode carries it; mode-dependent sections (picker credentials,
// annotation focus) attach here because the mode may be set after them.
func (b *Builder) Build() Config {
	if len(b.rpcAllowedOrigin) > 0 {
		b.cfg.RPCServer = &RPCServer{AllowedOrigins: b.rpcAllowedOrigin}
	}
	if b.cfg.Mode == ModeContentItemSelection && b.googleClientID != "" {
		b.cfg.FilePicker = &FilePicker{Google: &GooglePicker{
			ClientID:     b.googleClientID,
			DeveloperKey: b.googleDeveloperKey,
			Origin:       b.publicOrigin,
		}}
	}
	if b.focusUsername != "" && b.cfg.HypothesisClient != nil {
		b.cfg.HypothesisClient.Focus = &Focus{User: FocusedUser{
			Username:  b.focusUsername,
			Authority: b.authority,
		}}
	}
	return b.cfg
}
