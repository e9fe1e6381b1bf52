package app

import (
	"github.com/shopspring/decimal"

	"contract-ledger/internal/core"
)

// ContractRequest is the input for creating, updating or amending a contract.
// Lines are replaced wholesale on every full write.
type ContractRequest struct {
	CounterpartyID int64                 `json:"counterparty_id"`
	ContractNumber string                `json:"contract_number"`
	ContractType   string                `json:"contract_type"`
	Currency       string                `json:"currency"`
	StartDate      string                `json:"start_date"`
	EndDate        *string               `json:"end_date,omitempty"`
	Notes          *string               `json:"notes,omitempty"`
	Lines          []ContractLineRequest `json:"lines"`
}

// ContractLineRequest is a single line within a ContractRequest.
type ContractLineRequest struct {
	Description       string          `json:"description"`
	AmountTxn         decimal.Decimal `json:"amount_txn"`
	AmountBase        decimal.Decimal `json:"amount_base"`
	RecognitionMethod string          `json:"recognition_method"`
	RecognitionStart  *string         `json:"recognition_start,omitempty"`
	RecognitionEnd    *string         `json:"recognition_end,omitempty"`
	DeferredAccountID *int64          `json:"deferred_account_id,omitempty"`
	RevenueAccountID  *int64          `json:"revenue_account_id,omitempty"`
	Status            string          `json:"status"`
}

// AmendContractRequest is a full rewrite of a non-DRAFT contract plus the
// mandatory amendment reason.
type AmendContractRequest struct {
	ContractRequest
	Reason string `json:"reason"`
}

// PatchLineRequest carries the patchable fields of one contract line.
// Absent fields are left unchanged.
type PatchLineRequest struct {
	Patch  core.LinePatch `json:"patch"`
	Reason string         `json:"reason,omitempty"`
}

// LinkDocumentRequest is the input for linking a document to a contract.
type LinkDocumentRequest struct {
	ContractID int64            `json:"contract_id"`
	DocumentID int64            `json:"document_id"`
	LinkType   string           `json:"link_type"`
	AmountTxn  decimal.Decimal  `json:"amount_txn"`
	AmountBase decimal.Decimal  `json:"amount_base"`
	FxRate     *decimal.Decimal `json:"fx_rate,omitempty"`
}

// AdjustLinkRequest retargets a link's effective amounts.
type AdjustLinkRequest struct {
	AmountTxn  decimal.Decimal `json:"amount_txn"`
	AmountBase decimal.Decimal `json:"amount_base"`
	Reason     string          `json:"reason"`
}

// GenerateBillingRequest is the input for the billing generation workflow.
type GenerateBillingRequest struct {
	ContractID          int64            `json:"contract_id"`
	DocType             string           `json:"doc_type"`
	AmountStrategy      string           `json:"amount_strategy"`
	BillingDate         string           `json:"billing_date"`
	DueDate             *string          `json:"due_date,omitempty"`
	AmountTxn           *decimal.Decimal `json:"amount_txn,omitempty"`
	SelectedLineIDs     []int64          `json:"selected_line_ids,omitempty"`
	IdempotencyKey      string           `json:"idempotency_key"`
	IntegrationEventUID *string          `json:"integration_event_uid,omitempty"`
}

// TriggerRecognitionRequest is the input for triggering schedule generation.
type TriggerRecognitionRequest struct {
	ContractID       int64   `json:"contract_id"`
	FiscalPeriod     string  `json:"fiscal_period"`
	Mode             string  `json:"mode"`
	SourceDocumentID *int64  `json:"source_document_id,omitempty"`
	LineIDs          []int64 `json:"line_ids,omitempty"`
}
