package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scope identifies the tenant and legal entity an operation acts within,
// plus the acting user for audit attribution. Every public operation takes one.
type Scope struct {
	TenantID      int64
	LegalEntityID int64
	ActorID       int64
	RequestID     string
}

type ContractType string

const (
	ContractTypeCustomer ContractType = "CUSTOMER"
	ContractTypeVendor   ContractType = "VENDOR"
)

// Direction returns the document direction compatible with the contract type.
func (t ContractType) Direction() DocumentDirection {
	if t == ContractTypeVendor {
		return DirectionPayable
	}
	return DirectionReceivable
}

type ContractStatus string

const (
	ContractDraft     ContractStatus = "DRAFT"
	ContractActive    ContractStatus = "ACTIVE"
	ContractSuspended ContractStatus = "SUSPENDED"
	ContractClosed    ContractStatus = "CLOSED"
	ContractCancelled ContractStatus = "CANCELLED"
)

type Contract struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	LegalEntityID  int64           `json:"legal_entity_id"`
	CounterpartyID int64           `json:"counterparty_id"`
	ContractNumber string          `json:"contract_number"`
	Type           ContractType    `json:"contract_type"`
	Status         ContractStatus  `json:"status"`
	Version        int             `json:"version"`
	Currency       string          `json:"currency"`
	StartDate      string          `json:"start_date"`
	EndDate        *string         `json:"end_date,omitempty"`
	TotalTxn       decimal.Decimal `json:"total_txn"`
	TotalBase      decimal.Decimal `json:"total_base"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Lines          []ContractLine  `json:"lines"`
}

type RecognitionMethod string

const (
	RecognitionStraightLine RecognitionMethod = "STRAIGHT_LINE"
	RecognitionMilestone    RecognitionMethod = "MILESTONE"
	RecognitionManual       RecognitionMethod = "MANUAL"
)

type LineStatus string

const (
	LineActive   LineStatus = "ACTIVE"
	LineInactive LineStatus = "INACTIVE"
)

type ContractLine struct {
	ID                int64             `json:"id"`
	ContractID        int64             `json:"contract_id"`
	LineNumber        int               `json:"line_number"`
	Description       string            `json:"description"`
	AmountTxn         decimal.Decimal   `json:"amount_txn"`
	AmountBase        decimal.Decimal   `json:"amount_base"`
	RecognitionMethod RecognitionMethod `json:"recognition_method"`
	RecognitionStart  *string           `json:"recognition_start,omitempty"`
	RecognitionEnd    *string           `json:"recognition_end,omitempty"`
	DeferredAccountID *int64            `json:"deferred_account_id,omitempty"`
	RevenueAccountID  *int64            `json:"revenue_account_id,omitempty"`
	Status            LineStatus        `json:"status"`
}

type DocumentDirection string

const (
	DirectionReceivable DocumentDirection = "RECEIVABLE"
	DirectionPayable    DocumentDirection = "PAYABLE"
)

type DocumentType string

const (
	DocTypeInvoice    DocumentType = "INVOICE"
	DocTypeAdvance    DocumentType = "ADVANCE"
	DocTypeAdjustment DocumentType = "ADJUSTMENT"
)

type DocumentStatus string

const (
	DocumentDraft            DocumentStatus = "DRAFT"
	DocumentPosted           DocumentStatus = "POSTED"
	DocumentPartiallySettled DocumentStatus = "PARTIALLY_SETTLED"
	DocumentSettled          DocumentStatus = "SETTLED"
	DocumentCancelled        DocumentStatus = "CANCELLED"
)

// linkableDocumentStatuses are the only document states a link may target.
var linkableDocumentStatuses = map[DocumentStatus]bool{
	DocumentPosted:           true,
	DocumentPartiallySettled: true,
	DocumentSettled:          true,
}

// CariDocument is a billing/settlement document. The billing workflow writes
// DRAFT documents here; posting and settlement belong to the document subsystem.
type CariDocument struct {
	ID                    int64             `json:"id"`
	TenantID              int64             `json:"tenant_id"`
	LegalEntityID         int64             `json:"legal_entity_id"`
	CounterpartyID        int64             `json:"counterparty_id"`
	Direction             DocumentDirection `json:"direction"`
	DocType               DocumentType      `json:"doc_type"`
	Status                DocumentStatus    `json:"status"`
	DocumentNumber        string            `json:"document_number"`
	DocumentDate          string            `json:"document_date"`
	DueDate               *string           `json:"due_date,omitempty"`
	Currency              string            `json:"currency"`
	FxRate                *decimal.Decimal  `json:"fx_rate,omitempty"`
	AmountTxn             decimal.Decimal   `json:"amount_txn"`
	AmountBase            decimal.Decimal   `json:"amount_base"`
	OpenAmountTxn         decimal.Decimal   `json:"open_amount_txn"`
	OpenAmountBase        decimal.Decimal   `json:"open_amount_base"`
	IntegrationLinkStatus string            `json:"integration_link_status"`
	CreatedAt             time.Time         `json:"created_at"`
}

type LinkType string

const (
	LinkTypeBilling    LinkType = "BILLING"
	LinkTypeAdvance    LinkType = "ADVANCE"
	LinkTypeAdjustment LinkType = "ADJUSTMENT"
)

type LinkAction string

const (
	LinkActionAdjust LinkAction = "ADJUST"
	LinkActionUnlink LinkAction = "UNLINK"
)

// Link is the immutable base record of a contract↔document association.
// Its current state is materialized from the base amounts plus the event stream.
type Link struct {
	ID               int64           `json:"id"`
	TenantID         int64           `json:"tenant_id"`
	ContractID       int64           `json:"contract_id"`
	DocumentID       int64           `json:"document_id"`
	LinkType         LinkType        `json:"link_type"`
	AmountTxn        decimal.Decimal `json:"amount_txn"`
	AmountBase       decimal.Decimal `json:"amount_base"`
	ContractCurrency string          `json:"contract_currency"`
	DocumentCurrency string          `json:"document_currency"`
	FxRate           decimal.Decimal `json:"fx_rate"`
	CreatedBy        int64           `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`

	// Materialized on read.
	EffectiveTxn  decimal.Decimal `json:"effective_txn"`
	EffectiveBase decimal.Decimal `json:"effective_base"`
	IsUnlinked    bool            `json:"is_unlinked"`
	Events        []LinkEvent     `json:"events"`
}

type LinkEvent struct {
	ID        int64           `json:"id"`
	LinkID    int64           `json:"link_id"`
	Action    LinkAction      `json:"action"`
	DeltaTxn  decimal.Decimal `json:"delta_txn"`
	DeltaBase decimal.Decimal `json:"delta_base"`
	Reason    string          `json:"reason"`
	ActorID   int64           `json:"actor_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type AmountStrategy string

const (
	StrategyFull      AmountStrategy = "FULL"
	StrategyPartial   AmountStrategy = "PARTIAL"
	StrategyMilestone AmountStrategy = "MILESTONE"
)

type BatchStatus string

const (
	BatchPending   BatchStatus = "PENDING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchFailed    BatchStatus = "FAILED"
)

// BillingBatch is the idempotency record for one billing-generation attempt.
// Created once; only its status and generated pointers are ever updated.
type BillingBatch struct {
	ID                  int64           `json:"id"`
	TenantID            int64           `json:"tenant_id"`
	LegalEntityID       int64           `json:"legal_entity_id"`
	ContractID          int64           `json:"contract_id"`
	IdempotencyKey      string          `json:"idempotency_key"`
	IntegrationEventUID *string         `json:"integration_event_uid,omitempty"`
	DocType             DocumentType    `json:"doc_type"`
	AmountStrategy      AmountStrategy  `json:"amount_strategy"`
	BillingDate         string          `json:"billing_date"`
	DueDate             *string         `json:"due_date,omitempty"`
	AmountTxn           decimal.Decimal `json:"amount_txn"`
	AmountBase          decimal.Decimal `json:"amount_base"`
	SelectedLineIDs     []int64         `json:"selected_line_ids"`
	Status              BatchStatus     `json:"status"`
	GeneratedDocumentID *int64          `json:"generated_document_id,omitempty"`
	GeneratedLinkID     *int64          `json:"generated_link_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

type Amendment struct {
	ID            int64     `json:"id"`
	ContractID    int64     `json:"contract_id"`
	VersionBefore int       `json:"version_before"`
	VersionAfter  int       `json:"version_after"`
	Reason        string    `json:"reason"`
	Diff          []byte    `json:"diff"`
	ActorID       int64     `json:"actor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type Counterparty struct {
	ID                   int64  `json:"id"`
	TenantID             int64  `json:"tenant_id"`
	LegalEntityID        int64  `json:"legal_entity_id"`
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	IsCustomer           bool   `json:"is_customer"`
	IsVendor             bool   `json:"is_vendor"`
	Status               string `json:"status"`
	DefaultPaymentTermID *int64 `json:"default_payment_term_id,omitempty"`
}

type PaymentTerm struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	DueDays   int    `json:"due_days"`
	GraceDays int    `json:"grace_days"`
	Status    string `json:"status"`
}

type AccountFamily string

const (
	AccountRevenue         AccountFamily = "REVENUE"
	AccountDeferredRevenue AccountFamily = "DEFERRED_REVENUE"
	AccountExpense         AccountFamily = "EXPENSE"
	AccountDeferredExpense AccountFamily = "DEFERRED_EXPENSE"
)

type Account struct {
	ID            int64         `json:"id"`
	LegalEntityID int64         `json:"legal_entity_id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Family        AccountFamily `json:"family"`
	IsPostable    bool          `json:"is_postable"`
	IsActive      bool          `json:"is_active"`
}

// RollupSnapshot is the read-only financial position of a contract.
type RollupSnapshot struct {
	ContractID         int64           `json:"contract_id"`
	ContractType       ContractType    `json:"contract_type"`
	LinkedDocuments    int             `json:"linked_documents"`
	ActiveLinkedDocs   int             `json:"active_linked_documents"`
	BilledTxn          decimal.Decimal `json:"billed_txn"`
	BilledBase         decimal.Decimal `json:"billed_base"`
	CollectedTxn       decimal.Decimal `json:"collected_txn"`
	CollectedBase      decimal.Decimal `json:"collected_base"`
	UncollectedTxn     decimal.Decimal `json:"uncollected_txn"`
	UncollectedBase    decimal.Decimal `json:"uncollected_base"`
	ReceivableBase     decimal.Decimal `json:"receivable_base"`
	PayableBase        decimal.Decimal `json:"payable_base"`
	ScheduledBase      decimal.Decimal `json:"scheduled_base"`
	RecognizedBase     decimal.Decimal `json:"recognized_base"`
	DeferredBase       decimal.Decimal `json:"deferred_base"`
	RecognizedCoverage int64           `json:"recognized_coverage_pct"`
	CollectionCoverage int64           `json:"collection_coverage_pct"`
}

type GenerationMode string

const (
	ModeByContractLine   GenerationMode = "BY_CONTRACT_LINE"
	ModeByLinkedDocument GenerationMode = "BY_LINKED_DOCUMENT"
)

// RecognitionResult is returned by the external recognition scheduler.
type RecognitionResult struct {
	SchedulesGenerated int  `json:"schedules_generated"`
	LinesGenerated     int  `json:"lines_generated"`
	LinesSkipped       int  `json:"lines_skipped"`
	IdempotentReplay   bool `json:"idempotent_replay"`
}
