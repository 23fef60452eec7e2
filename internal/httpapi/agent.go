package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"calling-assistant/internal/appointments"
	"calling-assistant/internal/calls"
	"calling-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Routes under /agent are called by the voice agent during and after a
// call. Responses keep the {success, message} envelope the agent expects.

func agentError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

func pathUserID(c *gin.Context) (int64, bool) {
	uid, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || uid <= 0 {
		agentError(c, http.StatusBadRequest, "user_id must be a positive integer")
		return 0, false
	}
	return uid, true
}

func (h Handlers) AgentAppointments(c *gin.Context) {
	uid, ok := pathUserID(c)
	if !ok {
		return
	}
	list, err := h.Appointments.List(c.Request.Context(), uid, c.Query("from_date"))
	if err != nil {
		if errors.Is(err, appointments.ErrInvalidArgument) {
			agentError(c, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromGin(c).Error("appointments lookup failed", "user_id", uid, "err", err)
		agentError(c, http.StatusInternalServerError, "Failed to fetch appointments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user_id": uid, "appointments": list})
}

func (h Handlers) AgentAvailability(c *gin.Context) {
	uid, ok := pathUserID(c)
	if !ok {
		return
	}
	av, err := h.Appointments.Availability(c.Request.Context(), uid, c.Query("date"))
	if err != nil {
		if errors.Is(err, appointments.ErrInvalidArgument) {
			agentError(c, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromGin(c).Error("availability lookup failed", "user_id", uid, "err", err)
		agentError(c, http.StatusInternalServerError, "Failed to fetch availability")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"user_id":         uid,
		"date":            av.Date,
		"booked_slots":    av.Booked,
		"available_slots": av.Free,
	})
}

type slotRequest struct {
	UserID          int64  `json:"user_id"`
	AppointmentDate string `json:"appointment_date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
}

func (h Handlers) CheckAvailability(c *gin.Context) {
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		agentError(c, http.StatusBadRequest, "invalid json")
		return
	}
	taken, err := h.Appointments.CheckConflict(c.Request.Context(), req.UserID, req.AppointmentDate, req.StartTime, req.EndTime)
	if err != nil {
		if errors.Is(err, appointments.ErrInvalidArgument) {
			agentError(c, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromGin(c).Error("availability check failed", "user_id", req.UserID, "err", err)
		agentError(c, http.StatusInternalServerError, "Failed to check availability")
		return
	}
	msg := "Time slot available"
	if taken {
		msg = "Time slot already booked"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "available": !taken, "message": msg})
}

type bookRequest struct {
	slotRequest
	AttendeeName   string `json:"attendee_name"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Notes          string `json:"notes"`
	OrganizerName  string `json:"organizer_name"`
	OrganizerEmail string `json:"organizer_email"`
}

func (h Handlers) BookAppointment(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		agentError(c, http.StatusBadRequest, "Missing required fields")
		return
	}

	res, err := h.Appointments.Book(c.Request.Context(), appointments.BookingRequest{
		UserID:         req.UserID,
		Date:           req.AppointmentDate,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		AttendeeName:   req.AttendeeName,
		Title:          req.Title,
		Description:    req.Description,
		Notes:          req.Notes,
		OrganizerName:  req.OrganizerName,
		OrganizerEmail: req.OrganizerEmail,
	})
	switch {
	case err == nil:
	case errors.Is(err, appointments.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "conflict": true, "message": "Time slot already booked"})
		return
	case errors.Is(err, appointments.ErrInvalidArgument):
		agentError(c, http.StatusBadRequest, "Missing required fields")
		return
	default:
		logger.FromGin(c).Error("booking failed", "user_id", req.UserID, "err", err)
		agentError(c, http.StatusInternalServerError, "Failed to book appointment")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"appointment_id": res.AppointmentID,
		"email_sent":     res.EmailSent,
		"message":        "Appointment booked successfully",
	})
}

type callDataRequest struct {
	UserID         int64  `json:"user_id"`
	CallID         string `json:"call_id"`
	TranscriptURL  string `json:"transcript_url"`
	TranscriptBlob string `json:"transcript_blob"`
	RecordingURL   string `json:"recording_url"`
	RecordingBlob  string `json:"recording_blob"`
}

// SaveCallData stores the agent's post-call artifacts, marks the call
// completed and pulls the transcript document before responding.
func (h Handlers) SaveCallData(c *gin.Context) {
	log := logger.FromGin(c)

	var req callDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		agentError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CallID == "" {
		agentError(c, http.StatusBadRequest, "call_id is required")
		return
	}

	completed := calls.StatusCompleted
	u := calls.Update{
		Status:         &completed,
		TranscriptURL:  nonEmpty(req.TranscriptURL),
		TranscriptBlob: nonEmpty(req.TranscriptBlob),
		RecordingURL:   nonEmpty(req.RecordingURL),
		RecordingBlob:  nonEmpty(req.RecordingBlob),
	}
	_, found, err := h.Calls.Update(c.Request.Context(), req.CallID, u)
	if err != nil {
		log.Error("save call data failed", "call_id", req.CallID, "err", err)
		agentError(c, http.StatusInternalServerError, "Failed to save call data")
		return
	}
	if !found {
		agentError(c, http.StatusNotFound, "Call not found")
		return
	}

	fetched := false
	if h.Transcripts != nil && (req.TranscriptURL != "" || req.TranscriptBlob != "") {
		_, fetched = h.Transcripts.FetchAndStore(c.Request.Context(), req.CallID, req.TranscriptURL, req.TranscriptBlob)
	}
	if !fetched {
		log.Warn("transcript content not fetched", "call_id", req.CallID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"message":            "Call data saved successfully",
		"transcript_fetched": fetched,
	})
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
