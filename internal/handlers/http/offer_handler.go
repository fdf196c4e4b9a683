package http

import (
	"net/http"
	"time"

	"audiocast/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// OfferHandler exposes the signaling surface: a single offer/answer
// exchange plus a liveness probe.
type OfferHandler struct {
	peerService ports.PeerService
	logger      *zap.SugaredLogger
	startTime   time.Time
}

func NewOfferHandler(peerService ports.PeerService, logger *zap.SugaredLogger) *OfferHandler {
	return &OfferHandler{
		peerService: peerService,
		logger:      logger,
		startTime:   time.Now(),
	}
}

func (h *OfferHandler) SetupRoutes(router *gin.Engine) {
	router.POST("/offer", h.HandleOffer)
	router.GET("/health", h.HealthCheck)
}

// HandleOffer validates the offer, sets up a streaming session, and returns
// the answer. Structurally invalid offers are rejected before any session
// exists.
func (h *OfferHandler) HandleOffer(c *gin.Context) {
	var req struct {
		Offer struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		} `json:"offer"`
		ClientID string `json:"clientId"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Offer.Type == "" || req.Offer.SDP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offer must include type and sdp"})
		return
	}
	if req.ClientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientId is required"})
		return
	}

	offer := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(req.Offer.Type),
		SDP:  req.Offer.SDP,
	}

	answer, err := h.peerService.CreateSession(c.Request.Context(), req.ClientID, offer)
	if err != nil {
		h.logger.Errorw("failed to create session", "client_id", req.ClientID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer": gin.H{
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		},
	})
}

// HealthCheck is a static liveness probe.
func (h *OfferHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	})
}
