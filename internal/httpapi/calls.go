package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"calling-assistant/internal/calls"
	"calling-assistant/internal/telephony"
	"calling-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// InitiateCall dispatches the outbound agent and records the call as queued.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Outbound == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "outbound calling not configured"})
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req telephony.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Outbound.Initiate(c.Request.Context(), uid, req)
	switch {
	case err == nil:
	case errors.Is(err, telephony.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, telephony.ErrBusy):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many calls in progress"})
		return
	case errors.Is(err, calls.ErrAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a call with this id is already in progress"})
		return
	default:
		logger.FromGin(c).Error("initiate call failed", "user_id", uid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate call"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"room_name":   res.RoomName,
		"dispatch_id": res.DispatchID,
		"voice":       res.Voice.Name,
		"message":     "Call initiated successfully",
	})
}

func (h Handlers) ListVoices(c *gin.Context) {
	voices := h.Voices
	if voices == nil {
		voices = telephony.DefaultVoices()
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices.List()})
}

func (h Handlers) CallHistory(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	page, err1 := queryInt(c, "page", 1)
	size, err2 := queryInt(c, "page_size", calls.DefaultPageSize)
	if err1 != nil || err2 != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page and page_size must be integers"})
		return
	}

	p, err := h.Calls.List(c.Request.Context(), uid, page, size)
	if err != nil {
		if errors.Is(err, calls.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("call history lookup failed", "user_id", uid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "error fetching call history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": uid,
		"pagination": gin.H{
			"page":                page,
			"page_size":           size,
			"total":               p.Total,
			"completed_calls":     p.Completed,
			"not_completed_calls": p.NotCompleted,
		},
		"calls": p.Calls,
	})
}

func (h Handlers) CallStatus(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"call_id":        call.CallID,
		"status":         call.Status,
		"duration":       call.Duration,
		"started_at":     formatTime(call.StartedAt),
		"ended_at":       formatTime(call.EndedAt),
		"created_at":     formatTime(&call.CreatedAt),
		"recording_url":  call.RecordingURL,
		"transcript_url": call.TranscriptURL,
		"has_transcript": len(call.Transcript) > 0,
		"has_recording":  call.RecordingURL != nil && *call.RecordingURL != "",
		"to_number":      call.ToNumber,
		"from_number":    call.FromNumber,
	})
}

func (h Handlers) CallTranscript(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"call_id":            call.CallID,
		"transcript_url":     call.TranscriptURL,
		"transcript_blob":    call.TranscriptBlob,
		"transcript_content": call.Transcript,
		"uploaded_at":        formatTime(&call.CreatedAt),
	})
}

func (h Handlers) CallRecording(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	if call.RecordingURL == nil || *call.RecordingURL == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "message": "Recording not available yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"call_id":       call.CallID,
		"recording_url": call.RecordingURL,
		"duration":      call.Duration,
		"started_at":    formatTime(call.StartedAt),
		"ended_at":      formatTime(call.EndedAt),
	})
}

// ownedCall loads :call_id scoped to the caller; other users' calls are 404.
func (h Handlers) ownedCall(c *gin.Context) (calls.Call, bool) {
	uid, ok := currentUser(c)
	if !ok {
		return calls.Call{}, false
	}
	callID := c.Param("call_id")
	call, err := h.Calls.Get(c.Request.Context(), callID, uid)
	switch {
	case err == nil:
		return call, true
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call not found"})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("call lookup failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
	}
	return calls.Call{}, false
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
