package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

type createProcessingRequest struct {
	Processor string  `json:"processor"`
	Purposes  []uint8 `json:"purposes"`
}

func (h *Handler) handleCreateProcessing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createProcessingRequest
	if !decode(w, r, &req) {
		return
	}
	purposes := make([]domain.Purpose, 0, len(req.Purposes))
	for _, p := range req.Purposes {
		purposes = append(purposes, domain.Purpose(p))
	}
	err := h.service.CreateProcessing(r.Context(), opID(r), chi.URLParam(r, "recordID"),
		domain.Identity(req.Processor), purposes, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleGetProcessing(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	pc, err := record.ProcessingFor(domain.Identity(chi.URLParam(r, "processor")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessingPayload(pc))
}

func (h *Handler) handleGrantProcessing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	err := h.service.GrantProcessing(r.Context(), opID(r), chi.URLParam(r, "recordID"),
		domain.Identity(chi.URLParam(r, "processor")), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeProcessing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	err := h.service.RevokeProcessing(r.Context(), opID(r), chi.URLParam(r, "recordID"),
		domain.Identity(chi.URLParam(r, "processor")), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVerifyForPurpose answers whether the processor may act under the
// purpose right now. Purpose comes from the query string.
func (h *Handler) handleVerifyForPurpose(w http.ResponseWriter, r *http.Request) {
	purpose, ok := parsePurposeParam(w, r.URL.Query().Get("purpose"))
	if !ok {
		return
	}
	allowed, err := h.authz.VerifyForPurpose(r.Context(), chi.URLParam(r, "recordID"),
		domain.Identity(chi.URLParam(r, "processor")), purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authorized": allowed})
}

func (h *Handler) handleRevokeAllForProcessor(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	err := h.service.RevokeAllForProcessor(r.Context(), opID(r), chi.URLParam(r, "recordID"),
		domain.Identity(chi.URLParam(r, "processor")), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokePurpose(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	purpose, ok := parsePurposeParam(w, chi.URLParam(r, "purpose"))
	if !ok {
		return
	}
	err := h.service.RevokePurpose(r.Context(), opID(r), chi.URLParam(r, "recordID"), purpose, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePurposeParam(w http.ResponseWriter, raw string) (domain.Purpose, bool) {
	value, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "purpose must be a number"))
		return 0, false
	}
	purpose, err := domain.ParsePurpose(uint8(value))
	if err != nil {
		writeError(w, err)
		return 0, false
	}
	return purpose, true
}
