package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/assignment"
	"github.com/edbridge/annolti/internal/auth"
	"github.com/edbridge/annolti/internal/config"
	"github.com/edbridge/annolti/internal/courseinfo"
	"github.com/edbridge/annolti/internal/db"
	"github.com/edbridge/annolti/internal/grading"
	"github.com/edbridge/annolti/internal/hapi"
	"github.com/edbridge/annolti/internal/jsconfig"
	"github.com/edbridge/annolti/internal/launch"
	"github.com/edbridge/annolti/internal/lmsoauth"
	"github.com/edbridge/annolti/internal/outcomes"
	"github.com/edbridge/annolti/internal/registry"
	"github.com/edbridge/annolti/internal/resolver"
	"github.com/edbridge/annolti/internal/web"
)

func main() {
	cfg := config.FromEnv()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		log.Fatal("config invalid", zap.Error(err))
	}

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}

	regStore := registry.NewStore(dbh, cfg.LMSSecret)
	assignments := assignment.NewStore(dbh)
	files := assignment.NewFileCache(dbh)
	tokens := lmsoauth.NewStore(dbh)
	grades := grading.NewStore(dbh)
	courses := courseinfo.NewStore(dbh)

	// --- Auth ---
	bearer := auth.NewTokenService(cfg.JWTSecret)
	states := auth.NewStateService(cfg.OAuth2StateSecret)
	verifier := auth.NewLaunchVerifier(regStore)
	facade := &auth.Facade{Launch: verifier, Bearer: bearer, State: states}

	// --- Hypothesis + LMS clients ---
	hClient := hapi.NewClient(cfg.HAPIURLPrivate, cfg.HClientID, cfg.HClientSecret, cfg.HAuthority, log)
	bridge := &hapi.Bridge{Client: hClient}

	flow := &lmsoauth.Flow{
		Registry:    regStore,
		States:      states,
		Tokens:      tokens,
		Endpoints:   lmsoauth.CanvasEndpoints,
		RedirectURL: cfg.PublicURL + "/canvas_oauth_callback",
	}

	newBuilder := func() *jsconfig.Builder {
		return jsconfig.NewBuilder(cfg.HAPIURLPublic, cfg.HAuthority,
			cfg.HJWTClientID, cfg.HJWTClientSecret,
			cfg.ViaURL, cfg.PublicURL, cfg.RPCAllowedOrigins).
			WithGooglePicker(cfg.GoogleClientID, cfg.GoogleDeveloperKey)
	}

	// --- HTTP surface ---
	srv := &web.Server{
		Cfg:         cfg,
		Log:         log,
		Registry:    regStore,
		Assignments: assignments,
		Files:       files,
		Tokens:      tokens,
		Grades:      grades,
		Verifier:    verifier,
		Bearer:      bearer,
		States:      states,
		Facade:      facade,
		Flow:        flow,
		Outcomes:    outcomes.NewClient(),
		NewBuilder:  newBuilder,
	}

	srv.Pipeline = &launch.Pipeline{
		Registry:    regStore,
		Assignments: assignments,
		Bridge:      bridge,
		Resolver:    resolver.New(assignments),
		CopyMapper:  &resolver.CopyMapper{Assignments: assignments, Files: files},
		Recorder:    &grading.Recorder{Store: grades},
		Grades:      grades,
		Courses:     courses,
		Bearer:      bearer,
		Canvas: func(ctx context.Context, inst registry.ApplicationInstance, userID string) (launch.CanvasAPI, error) {
			return srv.CanvasClient(ctx, inst, userID)
		},
		NewBuilder: newBuilder,
		Log:        log,
	}

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	stop, cancelStop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancelStop()

	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("db", cfg.DBDriver))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-stop.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	_ = dbh.Close()
}
