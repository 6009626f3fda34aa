package proto

import (
	"NutBoltDetServer/detect"
	"NutBoltDetServer/service"
)

type DetectRequest struct {
	Image string `json:"image"`
}

type DetectReply struct {
	Success          bool               `json:"success"`
	RequestID        string             `json:"request_id"`
	Detections       []detect.Detection `json:"detections"`
	Counts           map[string]int     `json:"counts"`
	Total            int                `json:"total"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	ImageSize        service.ImageSize  `json:"image_size"`
}

type HealthReply struct {
	service.Health
}

type UpdateConfigRequest struct {
	Values map[string]any `json:"values"`
}

type ConfigReply struct {
	Success bool `json:"success"`
	detect.Config
}
