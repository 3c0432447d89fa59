// Package launch runs the steps of an LTI launch in their required order:
// verify, bind, resolve, provision, record, assemble. Each step is a named
// method over the shared Launch state; errors stop the pipeline and map to
// a response at the web layer. The ordering is load-bearing: a submission
// must never be recorded for an h-user that was not provisioned, and a
// learner must never be added to a group before an instructor created it.
package launch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/assignment"
	"github.com/edbridge/annolti/internal/auth"
	"github.com/edbridge/annolti/internal/courseinfo"
	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/grading"
	"github.com/edbridge/annolti/internal/hapi"
	"github.com/edbridge/annolti/internal/jsconfig"
	"github.com/edbridge/annolti/internal/lmsapi"
	"github.com/edbridge/annolti/internal/lti"
	"github.com/edbridge/annolti/internal/metrics"
	"github.com/edbridge/annolti/internal/registry"
	"github.com/edbridge/annolti/internal/resolver"
)

// CanvasAPI is the slice of the Canvas wrapper the pipeline calls;
// satisfied by *canvas.Client.
type CanvasAPI interface {
	resolver.CanvasFiles
}

// CanvasFactory builds a Canvas API client bound to the launch's instance
// and user. Nil factories disable Canvas file launches.
type CanvasFactory func(ctx context.Context, inst registry.ApplicationInstance, userID string) (CanvasAPI, error)

// Pipeline wires the components a launch touches.
type Pipeline struct {
	Registry    *registry.Store
	Assignments *assignment.Store
	Bridge      *hapi.Bridge
	Resolver    *resolver.Resolver
	CopyMapper  *resolver.CopyMapper
	Recorder    *grading.Recorder
	Grades      *grading.Store
	Courses     *courseinfo.Store
	Bearer      *auth.TokenService
	Canvas      CanvasFactory
	NewBuilder  func() *jsconfig.Builder
	Log         *zap.Logger
}

// Launch carries the state one launch accumulates as it moves through the
// steps.
type Launch struct {
	Params     lti.LaunchParams
	User       lti.User
	Instance   registry.ApplicationInstance
	Provision  hapi.Provisioned
	Resolution resolver.Resolution
	ViaDocURL  string
	Config     jsconfig.Config
}

// Run executes every step for already-verified launch params. Signature
// verification happens before this point, at the web layer, because it
// needs the raw request.
func (p *Pipeline) Run(ctx context.Context, params lti.LaunchParams) (*Launch, error) {
	l := &Launch{Params: params, User: params.User()}

	steps := []func(context.Context, *Launch) error{
		p.bindInstance,
		p.recordCourse,
		p.resolveDocument,
		p.provision,
		p.mintDocumentURL,
		p.recordGrading,
		p.assembleConfig,
	}
	for _, step := range steps {
		if err := step(ctx, l); err != nil {
			metrics.Launches.WithLabelValues(string(l.Resolution.Mode), "error").Inc()
			return l, err
		}
	}
	metrics.Launches.WithLabelValues(string(l.Resolution.Mode), "ok").Inc()
	return l, nil
}

// bindInstance loads the registration and binds the launch's guid on the
// instance's first launch. A guid mismatch refuses the launch.
func (p *Pipeline) bindInstance(ctx context.Context, l *Launch) error {
	inst, err := p.Registry.Get(ctx, l.Params.OAuthConsumerKey)
	if err != nil {
		return err
	}
	if err := p.Registry.BindGUID(ctx, l.Params.OAuthConsumerKey, l.Params.ToolConsumerInstanceGUID); err != nil {
		return err
	}
	inst.ToolConsumerInstanceGUID = l.Params.ToolConsumerInstanceGUID
	l.Instance = inst
	return nil
}

// recordCourse refreshes the denormalised course row and appends the
// audit record.
func (p *Pipeline) recordCourse(ctx context.Context, l *Launch) error {
	apid := hapi.AuthorityProvidedID(l.Params.ToolConsumerInstanceGUID, l.Params.ContextID)
	if err := p.Courses.UpsertGroupInfo(ctx, courseinfo.GroupInfo{
		AuthorityProvidedID:      apid,
		ConsumerKey:              l.Params.OAuthConsumerKey,
		ContextID:                l.Params.ContextID,
		ContextTitle:             l.Params.ContextTitle,
		ToolConsumerInstanceGUID: l.Params.ToolConsumerInstanceGUID,
	}); err != nil {
		return fmt.Errorf("record course: %w", err)
	}
	if err := p.Courses.RecordLaunch(ctx, l.Params.ContextID, l.Params.OAuthConsumerKey); err != nil {
		return fmt.Errorf("record launch: %w", err)
	}
	return nil
}

// provision upserts the h-user, the course group, and the membership.
// Skipped for instances with provisioning disabled.
func (p *Pipeline) provision(ctx context.Context, l *Launch) error {
	if !l.Instance.ProvisioningEnabled {
		return nil
	}
	prov, err := p.Bridge.Provision(ctx, l.User, l.Params.ContextID, l.Params.ContextTitle)
	if err != nil {
		return err
	}
	l.Provision = prov
	return nil
}

// resolveDocument picks the document mode and URL.
func (p *Pipeline) resolveDocument(ctx context.Context, l *Launch) error {
	res, err := p.Resolver.Resolve(ctx, l.Params, l.User.IsInstructor())
	if err != nil {
		return err
	}
	l.Resolution = res
	if res.Mode == resolver.ModeRefused {
		return errorx.ErrInstructorMustLaunchFirst
	}
	return nil
}

// mintDocumentURL turns an LMS file id into a temporary URL. For Canvas
// this happens on every launch because the URLs expire; a 404 on the file
// triggers the course-copy heuristic once.
func (p *Pipeline) mintDocumentURL(ctx context.Context, l *Launch) error {
	res := &l.Resolution
	if res.CanvasFileID == "" {
		l.ViaDocURL = res.DocumentURL
		return nil
	}
	if p.Canvas == nil {
		return errorx.ErrAccessTokenMissing
	}
	api, err := p.Canvas(ctx, l.Instance, l.User.UserID)
	if err != nil {
		return err
	}

	publicURL, err := api.PublicURL(ctx, res.CanvasFileID)
	if lmsapi.IsNotFound(err) && l.Params.CustomCanvasCourseID != "" {
		mappedID, mapErr := p.CopyMapper.MapFile(ctx, api, res.Assignment,
			l.Params.OAuthConsumerKey, l.Params.CustomCanvasCourseID, res.CanvasFileID)
		if mapErr != nil {
			return mapErr
		}
		res.CanvasFileID = mappedID
		publicURL, err = api.PublicURL(ctx, mappedID)
	}
	if err != nil {
		return err
	}
	l.ViaDocURL = publicURL
	return nil
}

// recordGrading upserts the LIS outcome tuple for gradable student
// launches.
func (p *Pipeline) recordGrading(ctx context.Context, l *Launch) error {
	hu := l.Provision.User
	if hu.Username == "" {
		hu = hapi.NewHUser("", l.User)
	}
	recorded, err := p.Recorder.Record(ctx, l.User, l.Params, hu)
	if err != nil {
		return fmt.Errorf("record grading: %w", err)
	}
	if recorded && p.Log != nil {
		p.Log.Debug("grading info recorded",
			zap.String("resource_link_id", l.Params.ResourceLinkID))
	}
	return nil
}

// assembleConfig builds the JS config handed to the browser.
func (p *Pipeline) assembleConfig(ctx context.Context, l *Launch) error {
	b := p.NewBuilder()

	token, err := p.Bearer.Encode(l.User)
	if err != nil {
		return err
	}
	b.AuthToken(token)

	if l.Instance.ProvisioningEnabled {
		if err := b.HypothesisService(l.Provision.User, l.Provision.GroupID); err != nil {
			return err
		}
	}

	switch l.Resolution.Mode {
	case resolver.ModePicker:
		b.Mode(jsconfig.ModeContentItemSelection)
	default:
		if err := b.Document(l.ViaDocURL); err != nil {
			return err
		}
	}

	if l.User.IsInstructor() && l.Params.FocusedUser != "" {
		b.FocusUser(hapi.Username(l.Params.ToolConsumerInstanceGUID, l.Params.FocusedUser))
	}

	if l.User.IsInstructor() && grading.Allowed(l.Params.ProductFamilyCode) {
		students, err := p.Grades.ListStudents(ctx, l.Params.OAuthConsumerKey, l.Params.ContextID, l.Params.ResourceLinkID)
		if err != nil {
			return err
		}
		b.Students(students)
	}

	if l.User.IsLearner() && !l.User.IsInstructor() && grading.Allowed(l.Params.ProductFamilyCode) &&
		l.Params.LISResultSourcedID != "" && l.Params.LISOutcomeServiceURL != "" {
		sp := jsconfig.SubmissionParams{
			HUsername:            l.Provision.User.Username,
			LISResultSourcedID:   l.Params.LISResultSourcedID,
			LISOutcomeServiceURL: l.Params.LISOutcomeServiceURL,
		}
		if l.Resolution.CanvasFileID != "" {
			sp.CanvasFileID = l.Resolution.CanvasFileID
		} else {
			sp.DocumentURL = l.Resolution.DocumentURL
		}
		b.Submission(sp)
	}

	l.Config = b.Build()
	return nil
}
