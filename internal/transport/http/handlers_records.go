package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"consentry/internal/consent"
	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

type createRecordRequest struct {
	Controller      string   `json:"controller"`
	Recipients      []string `json:"recipients"`
	DataFlags       uint32   `json:"dataFlags"`
	DurationSeconds int64    `json:"durationSeconds"`
	Purposes        []uint8  `json:"purposes"`
}

// handleCreateRecord creates a collection consent record with the
// authenticated caller as data subject.
func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createRecordRequest
	if !decode(w, r, &req) {
		return
	}

	params := consent.CreateParams{
		Subject:         caller,
		Controller:      domain.Identity(req.Controller),
		DataFlags:       domain.DataFlags(req.DataFlags),
		DurationSeconds: req.DurationSeconds,
	}
	for _, recipient := range req.Recipients {
		params.Recipients = append(params.Recipients, domain.Identity(recipient))
	}
	for _, purpose := range req.Purposes {
		params.Purposes = append(params.Purposes, domain.Purpose(purpose))
	}

	record, err := h.service.Create(r.Context(), opID(r), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordPayload(record, h.service.Now()))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListBySubject(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	now := h.service.Now()
	payload := make([]recordPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, toRecordPayload(record, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": payload})
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordPayload(record, h.service.Now()))
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.service.Grant(r.Context(), opID(r), chi.URLParam(r, "recordID"), caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.service.Revoke(r.Context(), opID(r), chi.URLParam(r, "recordID"), caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	valid, err := h.authz.Verify(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

type authorizeRequest struct {
	Recipient string `json:"recipient"`
	DataFlags uint32 `json:"dataFlags"`
}

// handleAuthorize answers a resource server's point-in-time access question.
// The response must be re-queried before every sensitive action; it carries
// no validity period.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Recipient == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "recipient cannot be empty"))
		return
	}
	allowed, err := h.authz.Authorize(r.Context(), chi.URLParam(r, "recordID"),
		domain.Identity(req.Recipient), domain.DataFlags(req.DataFlags))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authorized": allowed})
}
