// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rehearsal_routers

import (
	"context"

	"github.com/gin-gonic/gin"

	healthCheckApi "github.com/rapidaai/pitch-rehearsal/api/health-check-api"
	coachApi "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/api/coach"
	transcriptApi "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/api/transcript"
	voiceApi "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/api/voice"
	"github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/config"
	internal_coach "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/coach"
	internal_session "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/session"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, probes ...healthCheckApi.Probe) {
	logger.Info("Internal HealthCheckRoutes and Connectors added to engine.")
	apiv1 := engine.Group("")
	hcApi := healthCheckApi.New(logger, cfg.Version, probes...)
	{
		apiv1.GET("/readiness/", hcApi.Readiness)
		apiv1.GET("/healthz/", hcApi.Healthz)
	}
}

// VoiceRoutes registers the carrier webhooks and the relay socket. The relay
// path is configurable because it is embedded in the TwiML we hand out.
func VoiceRoutes(ctx context.Context, cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, registry *internal_session.Registry) {
	api := voiceApi.NewVoiceApi(ctx, cfg, logger, registry)
	apiv1 := engine.Group("/voice")
	{
		apiv1.POST("/incoming", api.Incoming)
		apiv1.POST("/status", api.Status)
	}
	engine.GET(cfg.Relay.Path, api.Relay)
}

func TranscriptRoutes(engine *gin.Engine, logger commons.Logger, store transcriptApi.Reader) {
	api := transcriptApi.NewTranscriptApi(logger, store)
	apiv1 := engine.Group("/transcripts")
	{
		apiv1.GET("", api.List)
		apiv1.GET("/:callId", api.Get)
	}
}

func CoachRoutes(engine *gin.Engine, logger commons.Logger, coach internal_coach.Coach) {
	api := coachApi.NewCoachApi(logger, coach)
	apiv1 := engine.Group("/coach")
	{
		apiv1.POST("/analyze/:callId", api.Analyze)
		apiv1.GET("/feedback/:callId", api.Feedback)
		apiv1.GET("/summary/:callId", api.Summary)
	}
}

func DebugRoutes(engine *gin.Engine, registry *internal_session.Registry) {
	api := voiceApi.NewSessionsApi(registry)
	engine.GET("/debug/sessions", api.Sessions)
}
