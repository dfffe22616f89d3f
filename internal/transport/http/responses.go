package httptransport

import (
	"sort"

	"consentry/internal/consent"
)

// Purposes render as []uint32 rather than []uint8: a byte slice would
// JSON-encode as base64, not as the numeric array the API promises.
type processingPayload struct {
	Processor string   `json:"processor"`
	Purposes  []uint32 `json:"purposes"`
	DSGranted bool     `json:"dsGranted"`
	DCGranted bool     `json:"dcGranted"`
	CreatedAt int64    `json:"createdAt"`
}

type recordPayload struct {
	ID              string              `json:"id"`
	Subject         string              `json:"subject"`
	Controller      string              `json:"controller"`
	Recipients      []string            `json:"recipients"`
	DataFlags       uint32              `json:"dataFlags"`
	CreatedAt       int64               `json:"createdAt"`
	DurationSeconds int64               `json:"durationSeconds"`
	Purposes        []uint32            `json:"purposes"`
	DSGranted       bool                `json:"dsGranted"`
	DCGranted       bool                `json:"dcGranted"`
	Delegates       []string            `json:"delegates"`
	Status          string              `json:"status"`
	Processing      []processingPayload `json:"processing"`
}

func toRecordPayload(record *consent.CollectionConsent, now int64) recordPayload {
	payload := recordPayload{
		ID:              record.ID,
		Subject:         record.Subject.String(),
		Controller:      record.Controller.String(),
		Recipients:      make([]string, 0, len(record.Recipients)),
		DataFlags:       uint32(record.DataFlags),
		CreatedAt:       record.CreatedAt,
		DurationSeconds: record.DurationSeconds,
		Purposes:        make([]uint32, 0, len(record.Purposes)),
		DSGranted:       record.DSGranted,
		DCGranted:       record.DCGranted,
		Delegates:       make([]string, 0, len(record.Delegates)),
		Status:          record.Status(now),
		Processing:      make([]processingPayload, 0, len(record.Processing)),
	}
	for _, r := range record.Recipients {
		payload.Recipients = append(payload.Recipients, r.String())
	}
	for _, p := range record.Purposes {
		payload.Purposes = append(payload.Purposes, uint32(p))
	}
	for _, d := range record.Delegates {
		payload.Delegates = append(payload.Delegates, d.String())
	}
	for _, pc := range record.Processing {
		payload.Processing = append(payload.Processing, toProcessingPayload(pc))
	}
	// Map iteration order is random; keep responses stable.
	sort.Slice(payload.Processing, func(i, j int) bool {
		return payload.Processing[i].Processor < payload.Processing[j].Processor
	})
	return payload
}

func toProcessingPayload(pc *consent.ProcessingConsent) processingPayload {
	payload := processingPayload{
		Processor: pc.Processor.String(),
		Purposes:  make([]uint32, 0, len(pc.Purposes)),
		DSGranted: pc.DSGranted,
		DCGranted: pc.DCGranted,
		CreatedAt: pc.CreatedAt,
	}
	for _, p := range pc.Purposes {
		payload.Purposes = append(payload.Purposes, uint32(p))
	}
	return payload
}
