// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	healthCheckApi "github.com/rapidaai/pitch-rehearsal/api/health-check-api"
	"github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/config"
	internal_callindex "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/callindex"
	internal_coach "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/coach"
	internal_normalizer "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/normalizer"
	internal_persona "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/persona"
	internal_session "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/session"
	internal_twilio_telephony "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/telephony/twilio"
	internal_transcript "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/transcript"
	router "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/router"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/connectors"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

const shutdownGrace = 30 * time.Second

type AppRunner struct {
	E        *gin.Engine
	Cfg      *config.AppConfig
	Logger   commons.Logger
	SQL      connectors.SQLConnector
	Redis    connectors.RedisConnector
	Store    internal_transcript.Store
	Index    *internal_callindex.Index
	Registry *internal_session.Registry
	Coach    internal_coach.Coach
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appRunner := &AppRunner{}
	if err := appRunner.ResolveConfig(); err != nil {
		log.Fatalf("unable to resolve config: %v", err)
	}
	if err := appRunner.Logging(); err != nil {
		log.Fatalf("unable to init logger: %v", err)
	}
	if err := appRunner.Run(ctx); err != nil {
		appRunner.Logger.Errorf("rehearsal api stopped with error: %v", err)
		_ = appRunner.Logger.Sync()
		os.Exit(1)
	}
	_ = appRunner.Logger.Sync()
}

func (app *AppRunner) ResolveConfig() error {
	v, err := config.InitConfig()
	if err != nil {
		return err
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		return err
	}
	app.Cfg = cfg
	return nil
}

func (app *AppRunner) Logging() error {
	logger, err := commons.NewApplicationLogger(
		commons.Name(app.Cfg.Name),
		commons.Path(app.Cfg.LogPath),
		commons.Level(app.Cfg.LogLevel),
	)
	if err != nil {
		return err
	}
	app.Logger = logger
	utils.PanicHandler = func(ctx context.Context, recovered interface{}, stack []byte) {
		logger.Errorw("recovered panic in goroutine", "panic", recovered, "stack", string(stack))
	}
	return nil
}

func (app *AppRunner) AllConnectors(ctx context.Context) error {
	app.SQL = connectors.NewSQLConnector(app.Cfg.Database, app.Logger)
	if err := app.SQL.Connect(ctx); err != nil {
		return err
	}
	if app.Cfg.Redis.Enabled() {
		app.Redis = connectors.NewRedisConnector(app.Cfg.Redis, app.Logger)
		if err := app.Redis.Connect(ctx); err != nil {
			return err
		}
	} else {
		app.Logger.Infof("redis not configured, active call index disabled")
	}
	return nil
}

func (app *AppRunner) Migrate(ctx context.Context) error {
	app.Store = internal_transcript.NewStore(app.SQL, app.Logger)
	return app.Store.Migrate(ctx)
}

// Recover closes transcripts left open by a previous run of this instance.
func (app *AppRunner) Recover(ctx context.Context) error {
	app.Index = internal_callindex.NewIndex(app.redisClient(), app.Logger, app.Cfg.InstanceId, app.Cfg.Session.IndexTTL)
	_, err := app.Index.Recover(ctx, app.Store)
	return err
}

func (app *AppRunner) Sessions(ctx context.Context) error {
	prompt, err := internal_persona.LoadSystemPrompt(app.Cfg.Persona.PromptPath)
	if err != nil {
		return err
	}
	backend, err := internal_persona.NewBackend(ctx, app.Cfg.Persona)
	if err != nil {
		return err
	}
	engine := internal_persona.NewEngine(app.Logger, backend,
		internal_persona.EngineOptionsFromConfig(app.Cfg.Persona, prompt))
	normalizer := internal_normalizer.NewSpeechNormalizer(app.Logger)

	opts := []internal_session.RegistryOption{
		internal_session.WithTombstoneTTL(app.Cfg.Session.TombstoneTTL),
		internal_session.WithActiveIndex(app.Index),
	}
	if app.Cfg.Twilio.AccountSid != "" {
		opts = append(opts, internal_session.WithCallTerminator(
			internal_twilio_telephony.NewTwilio(app.Logger, app.Cfg.Twilio)))
	}
	app.Registry = internal_session.NewRegistry(ctx, app.Logger, engine, app.Store, internal_session.Options{
		IdleTimeout:   app.Cfg.Session.IdleTimeout,
		FlushAttempts: app.Cfg.Session.FlushAttempts,
		FlushBackoff:  app.Cfg.Session.FlushBackoff,
		InboxSize:     app.Cfg.Session.InboxSize,
		PersonaLabel:  app.Cfg.Persona.Label,
		Normalize:     normalizer.Normalize,
	}, opts...)
	app.Logger.Infof("persona ready: provider=%s, model=%s", backend.Name(), app.Cfg.Persona.Model)
	return nil
}

func (app *AppRunner) CoachInit() error {
	if !app.Cfg.Coach.Enabled() {
		app.Logger.Infof("coach api key not configured, coaching disabled")
		return nil
	}
	prompt, err := internal_coach.LoadSystemPrompt(app.Cfg.Coach.PromptPath)
	if err != nil {
		return err
	}
	backend := internal_persona.NewOpenAIBackend(internal_persona.OpenAIOptions{
		ApiKey:  app.Cfg.Coach.ApiKey,
		Model:   app.Cfg.Coach.Model,
		BaseURL: app.Cfg.Coach.BaseURL,
	})
	app.Coach = internal_coach.NewCoach(app.Logger, backend, app.Store, internal_coach.Options{
		SystemPrompt: prompt,
		Model:        app.Cfg.Coach.Model,
	})
	return nil
}

func (app *AppRunner) AllRouters(ctx context.Context) {
	app.E = router.NewEngine(app.Cfg, app.Logger)
	router.HealthCheckRoutes(app.Cfg, app.E, app.Logger, app.probes()...)
	router.VoiceRoutes(ctx, app.Cfg, app.E, app.Logger, app.Registry)
	router.TranscriptRoutes(app.E, app.Logger, app.Store)
	router.CoachRoutes(app.E, app.Logger, app.Coach)
	router.DebugRoutes(app.E, app.Registry)
}

// Run wires every component and serves until ctx is cancelled. Live calls
// are ended and flushed before connectors are closed.
func (app *AppRunner) Run(ctx context.Context) error {
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.AllConnectors(ctx); err != nil {
		return err
	}
	defer app.Close()
	if err := app.Migrate(ctx); err != nil {
		return err
	}
	if err := app.Recover(ctx); err != nil {
		return err
	}
	if err := app.Sessions(appCtx); err != nil {
		return err
	}
	if err := app.CoachInit(); err != nil {
		return err
	}
	app.AllRouters(appCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", app.Cfg.Host, app.Cfg.Port),
		Handler:           app.E,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Infof("rehearsal api listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Infof("shutting down rehearsal api")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()

		// stop taking webhooks first, then end live calls while relay
		// sockets can still carry the end command
		err := srv.Shutdown(shutdownCtx)
		if rerr := app.Registry.Shutdown(shutdownCtx); rerr != nil {
			app.Logger.Errorf("live sessions not flushed before deadline: %v", rerr)
		}
		cancel()
		return err
	})
	return g.Wait()
}

func (app *AppRunner) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if app.Redis != nil {
		_ = app.Redis.Disconnect(ctx)
	}
	if app.SQL != nil {
		_ = app.SQL.Disconnect(ctx)
	}
}

func (app *AppRunner) redisClient() *redis.Client {
	if app.Redis == nil {
		return nil
	}
	return app.Redis.GetConnection()
}

func (app *AppRunner) probes() []healthCheckApi.Probe {
	probes := []healthCheckApi.Probe{app.SQL}
	if app.Redis != nil {
		probes = append(probes, app.Redis)
	}
	return probes
}
