package telephony

import (
	"io"
	"net/http"

	"calling-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/webhook"
)

const maxWebhookBytes = 1 << 20

// WebhookHandler adapts LiveKit webhook deliveries onto the Reconciler.
//
// Status policy: 400 for an unreadable body, 401 for a bad signature when
// verification is on, 500 only when the call store fails. Everything else
// is acknowledged with 200 so the platform does not retry.
type WebhookHandler struct {
	Reconciler *Reconciler

	// Dedup is optional. Deliveries without an id are never deduplicated.
	Dedup Deduper

	// Keys enables signature verification when set.
	Keys auth.KeyProvider
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Reconciler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook reconciler not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	var body []byte
	var err error
	if h.Keys != nil {
		body, err = webhook.Receive(c.Request, h.Keys)
		if err != nil {
			log.Warn("webhook signature rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return
		}
	} else {
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			log.Warn("webhook body read failed", "err", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
			return
		}
	}

	d, err := Decode(body)
	if err != nil {
		log.Warn("webhook decode failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}
	log = log.With("event", d.Name, "delivery_id", d.ID)

	ctx := c.Request.Context()
	claimed := false
	if h.Dedup != nil && d.ID != "" {
		fresh, err := h.Dedup.Claim(ctx, d.ID)
		switch {
		case err != nil:
			// Applying twice is safe; dropping is not.
			log.Warn("webhook dedup unavailable", "err", err)
		case !fresh:
			log.Info("duplicate webhook delivery")
			c.JSON(http.StatusOK, gin.H{"message": "Duplicate delivery ignored"})
			return
		default:
			claimed = true
		}
	}

	out, err := h.Reconciler.Apply(ctx, d.Event)
	if err != nil {
		if claimed {
			if rerr := h.Dedup.Release(ctx, d.ID); rerr != nil {
				log.Warn("webhook dedup release failed", "err", rerr)
			}
		}
		log.Error("webhook apply failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}

	log.Info("webhook applied", "call_id", out.CallID, "applied", out.Applied)
	c.JSON(http.StatusOK, gin.H{"message": out.Message})
}
