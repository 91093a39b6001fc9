// Package alerts normalizes alert-shaped records from every source into the
// store's Alert type.
package alerts

import (
	"fmt"
	"strings"
	"time"

	"aetheris-dashboard/internal/models"

	"github.com/google/uuid"
)

var severityAliases = map[string]models.Severity{
	"critical": models.SeverityCritical,
	"high":     models.SeverityCritical,
	"warning":  models.SeverityWarning,
	"medium":   models.SeverityWarning,
	"info":     models.SeverityInfo,
	"low":      models.SeverityInfo,
}

// Normalize derives the display severity of raw: an explicit canonical type
// wins, then the severity field through the alias table, else info.
func Normalize(raw models.RawAlert) models.Severity {
	switch t := models.Severity(strings.ToLower(strings.TrimSpace(raw.Type))); t {
	case models.SeverityCritical, models.SeverityWarning, models.SeverityInfo:
		return t
	}
	if sev, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw.Severity))]; ok {
		return sev
	}
	return models.SeverityInfo
}

// IDGenerator returns a fresh alert id for client-originated alerts.
type IDGenerator func() string

// NewIDGenerator produces ids of the form ws-<unix millis>-<random>.
func NewIDGenerator(now func() time.Time) IDGenerator {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return fmt.Sprintf("ws-%d-%s", now().UnixMilli(), uuid.NewString()[:8])
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FromRaw converts raw into an Alert. Missing ids come from newID, missing or
// unparsable timestamps default to now.
func FromRaw(raw models.RawAlert, newID IDGenerator, now time.Time) models.Alert {
	id := raw.ID
	if id == "" {
		id = newID()
	}
	ts := raw.Timestamp
	if ts == "" {
		ts = raw.CreatedAt
	}
	return models.Alert{
		ID:           id,
		Type:         Normalize(raw),
		Title:        raw.Title,
		Message:      raw.Message,
		Timestamp:    parseTimestamp(ts, now),
		Acknowledged: raw.Acknowledged,
		PatientID:    raw.PatientID,
		SurgeryID:    raw.SurgeryID,
		VitalType:    raw.VitalType,
		VitalValue:   raw.VitalValue,
	}
}

// FromCreate builds a locally injected alert.
func FromCreate(req models.AlertCreate, newID IDGenerator, now time.Time) models.Alert {
	return FromRaw(models.RawAlert{
		Severity:   string(req.Severity),
		Title:      req.Title,
		Message:    req.Message,
		PatientID:  req.PatientID,
		SurgeryID:  req.SurgeryID,
		VitalType:  req.VitalType,
		VitalValue: req.VitalValue,
	}, newID, now)
}

func parseTimestamp(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return fallback
}
