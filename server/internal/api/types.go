package api

import "github.com/vitalwatch/vitalwatch/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	PatientCount  int    `json:"patient_count"`
	RecordCount   int    `json:"record_count"`
	AlertsEmitted int64  `json:"alerts_emitted"`
}

// PatientResponse is one entry in GET /api/v1/patients.
type PatientResponse struct {
	PatientID int   `json:"patient_id"`
	Records   int   `json:"records"`
	Watermark int64 `json:"watermark"`
}

// WatermarkResponse is the payload for GET /api/v1/patients/{id}/watermark.
type WatermarkResponse struct {
	PatientID int   `json:"patient_id"`
	Watermark int64 `json:"watermark"`
}

// IngestResponse is the payload for POST /api/v1/records.
type IngestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// RecordRequest is one measurement in a JSON POST /api/v1/records body.
type RecordRequest = types.Record

type errorResponse struct {
	Error string `json:"error"`
}
