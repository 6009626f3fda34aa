package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"NutBoltDetServer/detect"
	"NutBoltDetServer/history"
	"NutBoltDetServer/ingest"
	"NutBoltDetServer/service"

	"github.com/gin-gonic/gin"
)

const (
	msgUnavailable = "Model not loaded. Please check server logs."
	msgNoImage     = `No image data provided. Send JSON with "image" field containing base64 data.`
	msgDecode      = "Failed to decode image. Ensure valid base64 format."
)

type detectRequest struct {
	Image *string `json:"image"`
}

// errorReply maps a detection error to its status code and envelope.
func errorReply(err error) (int, gin.H) {
	code, msg := http.StatusInternalServerError, ""
	switch {
	case errors.Is(err, service.ErrUnavailable):
		code, msg = http.StatusServiceUnavailable, msgUnavailable
	case errors.Is(err, service.ErrNoImage):
		code, msg = http.StatusBadRequest, msgNoImage
	case errors.Is(err, ingest.ErrDecode):
		code, msg = http.StatusBadRequest, msgDecode
	default:
		msg = "Detection failed: " + strings.TrimPrefix(err.Error(), service.ErrDetection.Error()+": ")
	}
	return code, gin.H{
		"success":    false,
		"error":      msg,
		"detections": []detect.Detection{},
	}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

func (h *handler) detect(c *gin.Context) {
	if !h.svc.Ready() {
		h.svc.Metrics().ObserveRequest("http", service.Outcome(service.ErrUnavailable))
		c.JSON(errorReply(service.ErrUnavailable))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.cfg.MaxBodyMB)<<20)
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == nil {
		h.svc.Metrics().ObserveRequest("http", service.Outcome(service.ErrNoImage))
		c.JSON(errorReply(service.ErrNoImage))
		return
	}

	resp, err := h.svc.Detect(c.Request.Context(), *req.Image, "http")
	if err != nil {
		c.JSON(errorReply(err))
		return
	}
	c.Header(RequestIDHeader, resp.RequestID)
	c.JSON(http.StatusOK, resp)
}

func (h *handler) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Config())
}

func (h *handler) updateConfig(c *gin.Context) {
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil || values == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Request body must be a JSON object.",
		})
		return
	}

	cfg, err := h.svc.UpdateConfig(values)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"confidence_threshold": cfg.ConfidenceThreshold,
		"iou_threshold":        cfg.IouThreshold,
		"input_size":           cfg.InputSize,
		"min_box_size":         cfg.MinBoxSize,
		"max_box_size":         cfg.MaxBoxSize,
		"max_box_ratio":        cfg.MaxBoxRatio,
	})
}

func (h *handler) history(c *gin.Context) {
	limit := history.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := h.svc.History(c.Request.Context(), limit)
	if errors.Is(err, history.ErrDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": "History is disabled"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
