package httpapi

import (
	"net/http"
	"time"

	"calling-assistant/internal/appointments"
	"calling-assistant/internal/auth"
	"calling-assistant/internal/calls"
	"calling-assistant/internal/rbac"
	"calling-assistant/internal/telephony"
	"calling-assistant/internal/transcripts"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth         *auth.Manager
	Calls        *calls.Service
	Appointments *appointments.Service
	Transcripts  *transcripts.Fetcher
	Outbound     *telephony.Outbound
	Voices       *telephony.Voices
}

// --- Auth ---

type tokenRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// IssueDevToken mints a token pair without checking credentials. Only
// registered outside production; real sign-in lives in the account service.
func (h Handlers) IssueDevToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleUser
	}
	if req.UserID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// currentUser reads the authenticated user id, aborting with 401 when absent.
func currentUser(c *gin.Context) (int64, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return 0, false
	}
	return uid, true
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
