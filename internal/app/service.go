package app

import (
	"context"

	"contract-ledger/internal/core"
)

// ApplicationService is the single interface all adapters call. It decouples
// presentation from business logic. Implementations must contain no display
// logic of any kind.
type ApplicationService interface {
	// CreateContract creates a new DRAFT contract with its lines.
	CreateContract(ctx context.Context, scope core.Scope, req ContractRequest) (*ContractResult, error)

	// UpdateContract replaces header and lines of a DRAFT contract.
	UpdateContract(ctx context.Context, scope core.Scope, contractID int64, req ContractRequest) (*ContractResult, error)

	// AmendContract replaces header and lines of an ACTIVE or SUSPENDED
	// contract, bumping its version and recording an amendment.
	AmendContract(ctx context.Context, scope core.Scope, contractID int64, req AmendContractRequest) (*ContractResult, error)

	// PatchContractLine applies a partial update to one line. Outside DRAFT
	// this records an amendment.
	PatchContractLine(ctx context.Context, scope core.Scope, contractID, lineID int64, req PatchLineRequest) (*ContractLineResult, error)

	// TransitionContract applies a lifecycle action (activate, suspend,
	// close, cancel) to the contract.
	TransitionContract(ctx context.Context, scope core.Scope, contractID int64, action string) (*ContractResult, error)

	// GetContract returns a contract with its lines.
	GetContract(ctx context.Context, scope core.Scope, contractID int64) (*ContractResult, error)

	// LinkDocument creates a contract↔document link within the document's
	// remaining open capacity.
	LinkDocument(ctx context.Context, scope core.Scope, req LinkDocumentRequest) (*LinkResult, error)

	// AdjustLink retargets a link's effective amount by appending an
	// ADJUST correction event.
	AdjustLink(ctx context.Context, scope core.Scope, linkID int64, req AdjustLinkRequest) (*LinkResult, error)

	// UnlinkDocument neutralizes a link by appending an UNLINK event.
	// The link and its history remain readable.
	UnlinkDocument(ctx context.Context, scope core.Scope, linkID int64, reason string) (*LinkResult, error)

	// GetLink returns a link with its effective amounts and event history.
	GetLink(ctx context.Context, scope core.Scope, linkID int64) (*LinkResult, error)

	// ListContractLinks returns all links of a contract, unlinked ones included.
	ListContractLinks(ctx context.Context, scope core.Scope, contractID int64) (*LinkListResult, error)

	// GenerateBilling runs the idempotent billing-document generation
	// workflow. Retries with the same idempotency key replay the original
	// outcome.
	GenerateBilling(ctx context.Context, scope core.Scope, req GenerateBillingRequest) (*BillingResult, error)

	// GetContractRollup computes the read-only financial position of a contract.
	GetContractRollup(ctx context.Context, scope core.Scope, contractID int64) (*RollupResult, error)

	// TriggerRecognition validates and hands a schedule-generation request
	// to the recognition subsystem.
	TriggerRecognition(ctx context.Context, scope core.Scope, req TriggerRecognitionRequest) (*RecognitionResult, error)
}
