package web

import (
	"encoding/json"
	"net/http"

	"contract-ledger/internal/app"
)

// generateBilling handles POST /api/contracts/{id}/billing.
// Replays of a completed generation return 200; first-time generation 201.
func (h *Handler) generateBilling(w http.ResponseWriter, r *http.Request) {
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
	var req app.GenerateBillingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	req.ContractID = id
	result, err := h.svc.GenerateBilling(r.Context(), scope, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.IdempotentReplay {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// getRollup handles GET /api/contracts/{id}/rollup.
func (h *Handler) getRollup(w http.ResponseWriter, r *http.Request) {
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
	result, err := h.svc.GetContractRollup(r.Context(), scope, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// triggerRecognition handles POST /api/contracts/{id}/recognition.
func (h *Handler) triggerRecognition(w http.ResponseWriter, r *http.Request) {
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
	var req app.TriggerRecognitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	req.ContractID = id
	result, err := h.svc.TriggerRecognition(r.Context(), scope, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
