package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecognitionScheduler is the external schedule generator. This engine only
// validates trigger requests and hands them off; schedule and run persistence
// belong to the recognition subsystem.
type RecognitionScheduler interface {
	GenerateSchedules(ctx context.Context, req ScheduleRequest) (*RecognitionResult, error)
}

// ScheduleRequest is the validated hand-off payload.
type ScheduleRequest struct {
	TenantID         int64          `json:"tenant_id"`
	LegalEntityID    int64          `json:"legal_entity_id"`
	ContractID       int64          `json:"contract_id"`
	FiscalPeriod     string         `json:"fiscal_period"`
	Mode             GenerationMode `json:"mode"`
	SourceDocumentID *int64         `json:"source_document_id,omitempty"`
	LineIDs          []int64        `json:"line_ids"`
}

type TriggerRecognitionInput struct {
	ContractID       int64          `json:"contract_id"`
	FiscalPeriod     string         `json:"fiscal_period"`
	Mode             GenerationMode `json:"mode"`
	SourceDocumentID *int64         `json:"source_document_id,omitempty"`
	LineIDs          []int64        `json:"line_ids,omitempty"`
}

// RevRecService validates recognition trigger requests against the contract
// and link state before delegating to the scheduler.
type RevRecService struct {
	pool      *pgxpool.Pool
	audit     *AuditRecorder
	scheduler RecognitionScheduler
}

func NewRevRecService(pool *pgxpool.Pool, audit *AuditRecorder, scheduler RecognitionScheduler) *RevRecService {
	return &RevRecService{pool: pool, audit: audit, scheduler: scheduler}
}

// Trigger checks that the contract is in a recognizable state, that its
// active lines carry postable accounts of the right family, and (for
// document-driven generation) that the source document holds an active link
// to the contract. Validation runs in its own transaction; the scheduler
// call happens outside it.
func (s *RevRecService) Trigger(ctx context.Context, scope Scope, input TriggerRecognitionInput) (*RecognitionResult, error) {
	switch input.Mode {
	case ModeByContractLine:
		if input.SourceDocumentID != nil {
			return nil, validationf("source_document_id", "source document is not allowed with %s", ModeByContractLine)
		}
	case ModeByLinkedDocument:
		if input.SourceDocumentID == nil {
			return nil, validationf("source_document_id", "source document is required for %s", ModeByLinkedDocument)
		}
	default:
		return nil, validationf("mode", "unknown generation mode %q", input.Mode)
	}
	if input.FiscalPeriod == "" {
		return nil, validationf("fiscal_period", "fiscal period is required")
	}
	if _, err := time.Parse("2006-01", input.FiscalPeriod); err != nil {
		return nil, validationf("fiscal_period", "fiscal period %q is not YYYY-MM", input.FiscalPeriod)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contract, err := fetchContractHeader(ctx, tx, scope, input.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != ContractActive {
		return nil, fmt.Errorf("contract %d is %s, recognition requires ACTIVE: %w",
			contract.ID, contract.Status, ErrInvalidState)
	}

	lines, err := fetchLines(ctx, tx, contract.ID)
	if err != nil {
		return nil, err
	}
	active := make(map[int64]ContractLine, len(lines))
	for _, l := range lines {
		if l.Status == LineActive {
			active[l.ID] = l
		}
	}

	var lineIDs []int64
	if len(input.LineIDs) > 0 {
		seen := make(map[int64]bool, len(input.LineIDs))
		for _, id := range input.LineIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			l, ok := active[id]
			if !ok {
				return nil, validationf("line_ids", "line %d is not an active line of contract %d", id, contract.ID)
			}
			if err := s.validateLineAccounts(ctx, tx, scope, contract.Type, l); err != nil {
				return nil, err
			}
			lineIDs = append(lineIDs, id)
		}
	} else {
		for _, l := range lines {
			if l.Status != LineActive {
				continue
			}
			if err := s.validateLineAccounts(ctx, tx, scope, contract.Type, l); err != nil {
				return nil, err
			}
			lineIDs = append(lineIDs, l.ID)
		}
	}
	if len(lineIDs) == 0 {
		return nil, validationf("contract_id", "contract %d has no active lines to recognize", contract.ID)
	}

	if input.Mode == ModeByLinkedDocument {
		if err := s.requireActiveLink(ctx, tx, scope, contract.ID, *input.SourceDocumentID); err != nil {
			return nil, err
		}
	}

	// Validation only read; release the transaction before delegating.
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return nil, fmt.Errorf("release validation transaction: %w", err)
	}

	result, err := s.scheduler.GenerateSchedules(ctx, ScheduleRequest{
		TenantID:         scope.TenantID,
		LegalEntityID:    scope.LegalEntityID,
		ContractID:       contract.ID,
		FiscalPeriod:     input.FiscalPeriod,
		Mode:             input.Mode,
		SourceDocumentID: input.SourceDocumentID,
		LineIDs:          lineIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("generate recognition schedules for contract %d: %w", contract.ID, err)
	}

	if err := s.recordOutcome(ctx, scope, contract.ID, input, result); err != nil {
		return nil, err
	}
	return result, nil
}

// recordOutcome audits the delegation result in its own short transaction.
func (s *RevRecService) recordOutcome(ctx context.Context, scope Scope, contractID int64, input TriggerRecognitionInput, result *RecognitionResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.audit.Record(ctx, tx, scope, "recognition.trigger", "contract", contractID, map[string]any{
		"mode":                input.Mode,
		"fiscal_period":       input.FiscalPeriod,
		"source_document_id":  input.SourceDocumentID,
		"schedules_generated": result.SchedulesGenerated,
		"lines_generated":     result.LinesGenerated,
		"lines_skipped":       result.LinesSkipped,
		"idempotent_replay":   result.IdempotentReplay,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit recognition audit: %w", err)
	}
	return nil
}

// validateLineAccounts requires both recognition accounts on the line, each
// active, postable and of the family matching the contract direction.
func (s *RevRecService) validateLineAccounts(ctx context.Context, tx pgx.Tx, scope Scope, contractType ContractType, line ContractLine) error {
	deferredFamily, recognizedFamily := AccountDeferredRevenue, AccountRevenue
	if contractType == ContractTypeVendor {
		deferredFamily, recognizedFamily = AccountDeferredExpense, AccountExpense
	}
	if line.DeferredAccountID == nil {
		return validationf("deferred_account_id", "line %d has no deferred account", line.ID)
	}
	if line.RevenueAccountID == nil {
		return validationf("revenue_account_id", "line %d has no recognition account", line.ID)
	}
	if err := requireAccount(ctx, tx, scope, "deferred_account_id", *line.DeferredAccountID, deferredFamily); err != nil {
		return err
	}
	return requireAccount(ctx, tx, scope, "revenue_account_id", *line.RevenueAccountID, recognizedFamily)
}

// requireActiveLink verifies the source document is linked to the contract
// by at least one link that is not unlinked.
func (s *RevRecService) requireActiveLink(ctx context.Context, tx pgx.Tx, scope Scope, contractID, documentID int64) error {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM contract_document_links l
			WHERE l.contract_id = $1 AND l.document_id = $2 AND l.tenant_id = $3
			  AND NOT EXISTS (
				SELECT 1 FROM contract_link_events e
				WHERE e.link_id = l.id AND e.action = 'UNLINK'
			  )
		)`,
		contractID, documentID, scope.TenantID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check link between contract %d and document %d: %w", contractID, documentID, err)
	}
	if !exists {
		return validationf("source_document_id",
			"document %d has no active link to contract %d", documentID, contractID)
	}
	return nil
}
