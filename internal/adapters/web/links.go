package web

import (
	"encoding/json"
	"net/http"

	"contract-ledger/internal/app"
)

// createLink handles POST /api/links.
func (h *Handler) createLink(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req app.LinkDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.LinkDocument(r.Context(), scope, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// getLink handles GET /api/links/{id}.
func (h *Handler) getLink(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	result, err := h.svc.GetLink(r.Context(), scope, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// adjustLink handles POST /api/links/{id}/adjust.
func (h *Handler) adjustLink(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req app.AdjustLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.AdjustLink(r.Context(), scope, id, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// unlinkDocument handles POST /api/links/{id}/unlink.
func (h *Handler) unlinkDocument(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.UnlinkDocument(r.Context(), scope, id, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// listContractLinks handles GET /api/contracts/{id}/links.
func (h *Handler) listContractLinks(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	result, err := h.svc.ListContractLinks(r.Context(), scope, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
