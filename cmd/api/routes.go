package main

import (
	"database/sql"
	"net/http"
	"time"

	"calling-assistant/internal/appointments"
	"calling-assistant/internal/auth"
	"calling-assistant/internal/calls"
	"calling-assistant/internal/config"
	"calling-assistant/internal/httpapi"
	"calling-assistant/internal/mw"
	"calling-assistant/internal/rbac"
	"calling-assistant/internal/telephony"
	"calling-assistant/internal/transcripts"
	"calling-assistant/pkg/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type deps struct {
	db           *sql.DB
	auth         *auth.Manager
	calls        *calls.Service
	appointments *appointments.Service
	transcripts  *transcripts.Fetcher
	outbound     *telephony.Outbound
	voices       *telephony.Voices
	webhooks     telephony.WebhookHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, d deps) {
	h := httpapi.Handlers{
		Auth:         d.auth,
		Calls:        d.calls,
		Appointments: d.appointments,
		Transcripts:  d.transcripts,
		Outbound:     d.outbound,
		Voices:       d.voices,
	}

	// Per-IP limiter for the shared-key agent surface.
	limiter := mw.RateLimiterWith(mw.NewIPRateLimiter(rate.Limit(cfg.Agent.RatePerSecond), cfg.Agent.Burst))

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Platform webhooks. Signature-verified when LiveKit keys are configured.
	// Not rate limited: every event arrives from a handful of platform IPs
	// and a rejected lifecycle event is never redelivered.
	hooks := r.Group("/webhooks")
	{
		hooks.POST("/livekit", d.webhooks.Handle)
		hooks.POST("/livekit-egress", d.webhooks.Handle)
	}

	if cfg.App.Env != "production" {
		r.POST("/auth/dev-token", h.IssueDevToken)
	}

	// user API
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth), rbac.RequireUser(), rbac.RequireAnyRole(rbac.RoleUser))
	{
		v1.GET("/voices", h.ListVoices)
		v1.POST("/calls", h.InitiateCall)
		v1.GET("/call-history", h.CallHistory)
		v1.GET("/call-status/:call_id", h.CallStatus)
		v1.GET("/calls/:call_id/transcript", h.CallTranscript)
		v1.GET("/calls/:call_id/recording", h.CallRecording)
	}

	// voice agent API (shared key)
	agent := r.Group("/agent")
	agent.Use(limiter, auth.RequireAgentKey(cfg.Agent.APIKey))
	{
		agent.GET("/appointments/:user_id", h.AgentAppointments)
		agent.GET("/availability/:user_id", h.AgentAvailability)
		agent.POST("/check-availability", h.CheckAvailability)
		agent.POST("/book-appointment", h.BookAppointment)
		agent.POST("/save-call-data", h.SaveCallData)
	}
}
