package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contract-ledger/internal/app"
)

// createContract handles POST /api/contracts.
func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req app.ContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.CreateContract(r.Context(), scope, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// getContract handles GET /api/contracts/{id}.
func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
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
	result, err := h.svc.GetContract(r.Context(), scope, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// updateContract handles PUT /api/contracts/{id} (DRAFT only).
func (h *Handler) updateContract(w http.ResponseWriter, r *http.Request) {
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
	var req app.ContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.UpdateContract(r.Context(), scope, id, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// amendContract handles POST /api/contracts/{id}/amendments.
func (h *Handler) amendContract(w http.ResponseWriter, r *http.Request) {
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
	var req app.AmendContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.AmendContract(r.Context(), scope, id, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// patchContractLine handles PATCH /api/contracts/{id}/lines/{lineID}.
func (h *Handler) patchContractLine(w http.ResponseWriter, r *http.Request) {
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
	lineID, err := urlID(r, "lineID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req app.PatchLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.PatchContractLine(r.Context(), scope, id, lineID, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// transitionContract handles POST /api/contracts/{id}/transitions/{action}.
func (h *Handler) transitionContract(w http.ResponseWriter, r *http.Request) {
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
	result, err := h.svc.TransitionContract(r.Context(), scope, id, chi.URLParam(r, "action"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
