package models

import (
	"strings"
	"time"
)

// ModelStatus is the lifecycle state of a model run as reported by the backend.
// The member set is owned by the backend; unknown values are kept verbatim.
type ModelStatus string

const (
	ModelStatusPending   ModelStatus = "PENDING"
	ModelStatusTraining  ModelStatus = "TRAINING"
	ModelStatusCompleted ModelStatus = "COMPLETED"
	ModelStatusActive    ModelStatus = "ACTIVE"
	ModelStatusFailed    ModelStatus = "FAILED"
)

// IsFailed reports a terminal failed run, compared case-insensitively
func (s ModelStatus) IsFailed() bool {
	return strings.EqualFold(string(s), string(ModelStatusFailed))
}

// IngestionStatus is returned by POST /admin/ingest-data
type IngestionStatus struct {
	Status    string   `json:"status"`
	Files     []string `json:"files"`
	Timestamp string   `json:"timestamp"`
}

// ProcessingStatus is returned by POST /admin/process-data
type ProcessingStatus struct {
	Status    string `json:"status"`
	Records   int    `json:"records"`
	Teams     int    `json:"teams"`
	Timestamp string `json:"timestamp"`
}

// TrainingStatus is returned by POST /admin/train-model
type TrainingStatus struct {
	Status      string         `json:"status"`
	ModelRunID  string         `json:"model_run_id"`
	ModelS3Path string         `json:"model_s3_path"`
	Metrics     map[string]any `json:"metrics"`
	Timestamp   string         `json:"timestamp"`
}

// ModelRun is one entry of the model registry
type ModelRun struct {
	ID          string         `json:"id"`
	CreatedAt   string         `json:"created_at"`
	ModelS3Path string         `json:"model_s3_path"`
	Status      ModelStatus    `json:"status"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Notes       *string        `json:"notes,omitempty"`
}

// ActivationResult is returned by POST /admin/model-runs/{id}/activate
type ActivationResult struct {
	Status           string `json:"status"`
	ActiveModelRunID string `json:"active_model_run_id"`
}

// backend timestamps are ISO-8601, with or without a zone
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a backend timestamp, reporting false when it is not ISO-8601
func ParseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Created parses CreatedAt
func (r ModelRun) Created() (time.Time, bool) {
	return ParseTimestamp(r.CreatedAt)
}

// Metric returns a numeric metric; non-numeric and missing values report false
func (r ModelRun) Metric(name string) (float64, bool) {
	return NumericMetric(r.Metrics, name)
}

// NumericMetric extracts a numeric entry from a metrics mapping
func NumericMetric(metrics map[string]any, name string) (float64, bool) {
	if metrics == nil {
		return 0, false
	}
	switch v := metrics[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
