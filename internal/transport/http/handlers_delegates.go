package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"consentry/pkg/domain"
)

type addDelegateRequest struct {
	Delegate string `json:"delegate"`
}

func (h *Handler) handleAddDelegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req addDelegateRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.service.AddDelegate(r.Context(), opID(r), chi.URLParam(r, "recordID"),
		domain.Identity(req.Delegate), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveDelegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	err := h.service.RemoveDelegate(r.Context(), opID(r), chi.URLParam(r, "recordID"),
		domain.Identity(chi.URLParam(r, "delegate")), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
