package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ContractLineInput is one line of a create/update/amend payload.
type ContractLineInput struct {
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

// ContractInput is the validated payload for create/update/amend.
// Lines are replaced wholesale on every full write.
type ContractInput struct {
	CounterpartyID int64               `json:"counterparty_id"`
	ContractNumber string              `json:"contract_number"`
	Type           ContractType        `json:"contract_type"`
	Currency       string              `json:"currency"`
	StartDate      string              `json:"start_date"`
	EndDate        *string             `json:"end_date,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
	Lines          []ContractLineInput `json:"lines"`
}

// LinePatch carries the patchable fields of a single contract line.
// Nil fields are left unchanged.
type LinePatch struct {
	Description       *string            `json:"description,omitempty"`
	AmountTxn         *decimal.Decimal   `json:"amount_txn,omitempty"`
	AmountBase        *decimal.Decimal   `json:"amount_base,omitempty"`
	RecognitionMethod *RecognitionMethod `json:"recognition_method,omitempty"`
	RecognitionStart  *string            `json:"recognition_start,omitempty"`
	RecognitionEnd    *string            `json:"recognition_end,omitempty"`
	DeferredAccountID *int64             `json:"deferred_account_id,omitempty"`
	RevenueAccountID  *int64             `json:"revenue_account_id,omitempty"`
	Status            *LineStatus        `json:"status,omitempty"`
}

// applyLinePatch overlays the patch's non-nil fields onto the line; anything
// the caller left nil keeps its current value.
func applyLinePatch(line *ContractLine, patch LinePatch) {
	if patch.Description != nil {
		line.Description = *patch.Description
	}
	if patch.AmountTxn != nil {
		line.AmountTxn = *patch.AmountTxn
	}
	if patch.AmountBase != nil {
		line.AmountBase = *patch.AmountBase
	}
	if patch.RecognitionMethod != nil {
		line.RecognitionMethod = *patch.RecognitionMethod
	}
	if patch.RecognitionStart != nil {
		line.RecognitionStart = patch.RecognitionStart
	}
	if patch.RecognitionEnd != nil {
		line.RecognitionEnd = patch.RecognitionEnd
	}
	if patch.DeferredAccountID != nil {
		line.DeferredAccountID = patch.DeferredAccountID
	}
	if patch.RevenueAccountID != nil {
		line.RevenueAccountID = patch.RevenueAccountID
	}
	if patch.Status != nil {
		line.Status = *patch.Status
	}
}

// ContractService owns the contract aggregate: header, lines, lifecycle.
type ContractService struct {
	pool    *pgxpool.Pool
	audit   *AuditRecorder
	amounts AmountPolicy
}

func NewContractService(pool *pgxpool.Pool, audit *AuditRecorder, amounts AmountPolicy) *ContractService {
	return &ContractService{pool: pool, audit: audit, amounts: amounts}
}

// Create inserts a new DRAFT contract at version 1 with its lines.
func (s *ContractService) Create(ctx context.Context, scope Scope, input ContractInput) (*Contract, error) {
	if err := validateContractInput(input); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := requireLegalEntity(ctx, tx, scope); err != nil {
		return nil, err
	}
	if err := requireCurrency(ctx, tx, input.Currency); err != nil {
		return nil, err
	}
	if _, err := requireCounterparty(ctx, tx, scope, input.CounterpartyID, input.Type); err != nil {
		return nil, err
	}
	if err := s.validateLineAccounts(ctx, tx, scope, input.Type, input.Lines); err != nil {
		return nil, err
	}

	totalTxn, totalBase := s.lineTotals(input.Lines)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO contracts (tenant_id, legal_entity_id, counterparty_id, contract_number, contract_type,
		                       status, version, currency, start_date, end_date, total_txn, total_base, notes)
		VALUES ($1, $2, $3, $4, $5, 'DRAFT', 1, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		scope.TenantID, scope.LegalEntityID, input.CounterpartyID, input.ContractNumber, input.Type,
		input.Currency, input.StartDate, input.EndDate, totalTxn, totalBase, input.Notes,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "contracts_number_key") {
			return nil, validationf("contract_number", "contract number %q already exists", input.ContractNumber)
		}
		return nil, fmt.Errorf("insert contract: %w", err)
	}

	if err := insertLines(ctx, tx, id, input.Lines); err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, tx, scope, "contract.create", "contract", id, map[string]any{
		"contract_number": input.ContractNumber,
		"contract_type":   input.Type,
		"line_count":      len(input.Lines),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit contract: %w", err)
	}
	return s.Get(ctx, scope, id)
}

// Update replaces the full contract payload. Permitted only while DRAFT.
func (s *ContractService) Update(ctx context.Context, scope Scope, contractID int64, input ContractInput) (*Contract, error) {
	return s.fullWrite(ctx, scope, contractID, input, "", false)
}

// Amend replaces the full contract payload after activation, recording an
// amendment snapshot. Permitted only while ACTIVE or SUSPENDED.
func (s *ContractService) Amend(ctx context.Context, scope Scope, contractID int64, input ContractInput, reason string) (*Contract, error) {
	if reason == "" {
		return nil, validationf("reason", "amendment reason is required")
	}
	return s.fullWrite(ctx, scope, contractID, input, reason, true)
}

// fullWrite is the shared update/amend path: lock, status guard, wholesale
// line replacement, version bump, optional amendment snapshot, audit.
func (s *ContractService) fullWrite(ctx context.Context, scope Scope, contractID int64, input ContractInput, reason string, amendment bool) (*Contract, error) {
	if err := validateContractInput(input); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := lockContract(ctx, tx, scope, contractID)
	if err != nil {
		return nil, err
	}
	if amendment {
		if before.Status != ContractActive && before.Status != ContractSuspended {
			return nil, fmt.Errorf("contract %d is %s, amendment requires ACTIVE or SUSPENDED: %w",
				contractID, before.Status, ErrInvalidState)
		}
	} else {
		if before.Status != ContractDraft {
			return nil, fmt.Errorf("contract %d is %s, update requires DRAFT: %w",
				contractID, before.Status, ErrInvalidState)
		}
	}

	if err := requireCurrency(ctx, tx, input.Currency); err != nil {
		return nil, err
	}
	if _, err := requireCounterparty(ctx, tx, scope, input.CounterpartyID, input.Type); err != nil {
		return nil, err
	}
	if err := s.validateLineAccounts(ctx, tx, scope, input.Type, input.Lines); err != nil {
		return nil, err
	}

	beforeLines, err := fetchLines(ctx, tx, contractID)
	if err != nil {
		return nil, err
	}

	totalTxn, totalBase := s.lineTotals(input.Lines)
	newVersion := before.Version + 1

	tag, err := tx.Exec(ctx, `
		UPDATE contracts
		SET counterparty_id = $1, contract_number = $2, contract_type = $3, currency = $4,
		    start_date = $5, end_date = $6, notes = $7, total_txn = $8, total_base = $9,
		    version = $10, updated_at = NOW()
		WHERE id = $11`,
		input.CounterpartyID, input.ContractNumber, input.Type, input.Currency,
		input.StartDate, input.EndDate, input.Notes, totalTxn, totalBase,
		newVersion, contractID,
	)
	if err != nil {
		if isUniqueViolation(err, "contracts_number_key") {
			return nil, validationf("contract_number", "contract number %q already exists", input.ContractNumber)
		}
		return nil, fmt.Errorf("update contract %d: %w", contractID, err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("contract %d update affected %d rows: %w", contractID, tag.RowsAffected(), ErrIntegrity)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM contract_lines WHERE contract_id = $1", contractID); err != nil {
		return nil, fmt.Errorf("replace lines for contract %d: %w", contractID, err)
	}
	if err := insertLines(ctx, tx, contractID, input.Lines); err != nil {
		return nil, err
	}

	action := "contract.update"
	if amendment {
		action = "contract.amend"
		if err := writeAmendment(ctx, tx, scope, contractID, before.Version, newVersion, reason, map[string]any{
			"header_before": before,
			"lines_before":  beforeLines,
			"input":         input,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.audit.Record(ctx, tx, scope, action, "contract", contractID, map[string]any{
		"version_before": before.Version,
		"version_after":  newVersion,
		"reason":         reason,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit contract write: %w", err)
	}
	return s.Get(ctx, scope, contractID)
}

// PatchLine applies a partial update to a single line and recomputes header
// totals. Mutations after DRAFT record an amendment snapshot.
func (s *ContractService) PatchLine(ctx context.Context, scope Scope, contractID, lineID int64, patch LinePatch) (*Contract, *ContractLine, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := lockContract(ctx, tx, scope, contractID)
	if err != nil {
		return nil, nil, err
	}
	switch before.Status {
	case ContractDraft, ContractActive, ContractSuspended:
	default:
		return nil, nil, fmt.Errorf("contract %d is %s, line patch requires DRAFT, ACTIVE or SUSPENDED: %w",
			contractID, before.Status, ErrInvalidState)
	}

	lines, err := fetchLines(ctx, tx, contractID)
	if err != nil {
		return nil, nil, err
	}
	var current *ContractLine
	for i := range lines {
		if lines[i].ID == lineID {
			current = &lines[i]
			break
		}
	}
	if current == nil {
		return nil, nil, fmt.Errorf("line %d on contract %d: %w", lineID, contractID, ErrNotFound)
	}
	beforeLine := *current

	applyLinePatch(current, patch)
	current.AmountTxn = s.amounts.Normalize(current.AmountTxn)
	current.AmountBase = s.amounts.Normalize(current.AmountBase)
	if !current.AmountTxn.IsPositive() || !current.AmountBase.IsPositive() {
		return nil, nil, validationf("amount", "line amount must be positive")
	}
	if err := validateRecognitionMethod(current.RecognitionMethod); err != nil {
		return nil, nil, err
	}
	if patch.DeferredAccountID != nil || patch.RevenueAccountID != nil {
		li := ContractLineInput{
			DeferredAccountID: current.DeferredAccountID,
			RevenueAccountID:  current.RevenueAccountID,
		}
		if err := s.validateLineAccounts(ctx, tx, scope, before.Type, []ContractLineInput{li}); err != nil {
			return nil, nil, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE contract_lines
		SET description = $1, amount_txn = $2, amount_base = $3, recognition_method = $4,
		    recognition_start = $5, recognition_end = $6, deferred_account_id = $7,
		    revenue_account_id = $8, status = $9
		WHERE id = $10`,
		current.Description, current.AmountTxn, current.AmountBase, current.RecognitionMethod,
		current.RecognitionStart, current.RecognitionEnd, current.DeferredAccountID,
		current.RevenueAccountID, current.Status, lineID,
	); err != nil {
		return nil, nil, fmt.Errorf("patch line %d: %w", lineID, err)
	}

	totalTxn, totalBase := decimal.Zero, decimal.Zero
	for _, l := range lines {
		if l.Status == LineActive {
			totalTxn = totalTxn.Add(l.AmountTxn)
			totalBase = totalBase.Add(l.AmountBase)
		}
	}
	totalTxn = s.amounts.Normalize(totalTxn)
	totalBase = s.amounts.Normalize(totalBase)

	newVersion := before.Version + 1
	if _, err := tx.Exec(ctx, `
		UPDATE contracts SET total_txn = $1, total_base = $2, version = $3, updated_at = NOW()
		WHERE id = $4`,
		totalTxn, totalBase, newVersion, contractID,
	); err != nil {
		return nil, nil, fmt.Errorf("update contract %d totals: %w", contractID, err)
	}

	if before.Status != ContractDraft {
		if err := writeAmendment(ctx, tx, scope, contractID, before.Version, newVersion, "line patch", map[string]any{
			"line_before": beforeLine,
			"line_after":  *current,
		}); err != nil {
			return nil, nil, err
		}
	}

	if err := s.audit.Record(ctx, tx, scope, "contract.patch_line", "contract", contractID, map[string]any{
		"line_id":        lineID,
		"version_before": before.Version,
		"version_after":  newVersion,
	}); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit line patch: %w", err)
	}

	contract, err := s.Get(ctx, scope, contractID)
	if err != nil {
		return nil, nil, err
	}
	for i := range contract.Lines {
		if contract.Lines[i].ID == lineID {
			return contract, &contract.Lines[i], nil
		}
	}
	return nil, nil, fmt.Errorf("line %d missing after patch: %w", lineID, ErrIntegrity)
}

// Transition applies a lifecycle action. The status is checked once without
// a lock so bad requests fail cheaply, then re-checked under FOR UPDATE
// because it may have moved in between.
func (s *ContractService) Transition(ctx context.Context, scope Scope, contractID int64, action LifecycleAction) (*Contract, error) {
	var status ContractStatus
	err := s.pool.QueryRow(ctx,
		"SELECT status FROM contracts WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3",
		contractID, scope.TenantID, scope.LegalEntityID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch contract %d: %w", contractID, err)
	}
	if _, err := NextStatus(action, status); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := lockContract(ctx, tx, scope, contractID)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(action, locked.Status)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE contracts SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2`,
		next, contractID,
	); err != nil {
		return nil, fmt.Errorf("transition contract %d: %w", contractID, err)
	}

	if err := s.audit.Record(ctx, tx, scope, "contract."+string(action), "contract", contractID, map[string]any{
		"from": locked.Status,
		"to":   next,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return s.Get(ctx, scope, contractID)
}

// Get returns a contract with its lines.
func (s *ContractService) Get(ctx context.Context, scope Scope, contractID int64) (*Contract, error) {
	c := &Contract{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, counterparty_id, contract_number, contract_type,
		       status, version, currency, start_date::text, end_date::text, total_txn, total_base,
		       notes, created_at, updated_at
		FROM contracts
		WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3`,
		contractID, scope.TenantID, scope.LegalEntityID,
	).Scan(
		&c.ID, &c.TenantID, &c.LegalEntityID, &c.CounterpartyID, &c.ContractNumber, &c.Type,
		&c.Status, &c.Version, &c.Currency, &c.StartDate, &c.EndDate, &c.TotalTxn, &c.TotalBase,
		&c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
		}
		return nil, fmt.Errorf("get contract %d: %w", contractID, err)
	}

	rows, err := s.pool.Query(ctx, lineSelect+" WHERE contract_id = $1 ORDER BY line_number", contractID)
	if err != nil {
		return nil, fmt.Errorf("fetch lines for contract %d: %w", contractID, err)
	}
	defer rows.Close()
	c.Lines, err = scanLines(rows)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

const lineSelect = `
	SELECT id, contract_id, line_number, description, amount_txn, amount_base,
	       recognition_method, recognition_start::text, recognition_end::text,
	       deferred_account_id, revenue_account_id, status
	FROM contract_lines`

// lockContract re-reads the contract header under FOR UPDATE.
func lockContract(ctx context.Context, tx pgx.Tx, scope Scope, contractID int64) (*Contract, error) {
	c := &Contract{}
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, counterparty_id, contract_number, contract_type,
		       status, version, currency, start_date::text, end_date::text, total_txn, total_base,
		       notes, created_at, updated_at
		FROM contracts
		WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3
		FOR UPDATE`,
		contractID, scope.TenantID, scope.LegalEntityID,
	).Scan(
		&c.ID, &c.TenantID, &c.LegalEntityID, &c.CounterpartyID, &c.ContractNumber, &c.Type,
		&c.Status, &c.Version, &c.Currency, &c.StartDate, &c.EndDate, &c.TotalTxn, &c.TotalBase,
		&c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
		}
		return nil, fmt.Errorf("lock contract %d: %w", contractID, err)
	}
	return c, nil
}

func fetchLines(ctx context.Context, tx pgx.Tx, contractID int64) ([]ContractLine, error) {
	rows, err := tx.Query(ctx, lineSelect+" WHERE contract_id = $1 ORDER BY line_number FOR UPDATE", contractID)
	if err != nil {
		return nil, fmt.Errorf("fetch lines for contract %d: %w", contractID, err)
	}
	defer rows.Close()
	return scanLines(rows)
}

func scanLines(rows pgx.Rows) ([]ContractLine, error) {
	var lines []ContractLine
	for rows.Next() {
		var l ContractLine
		if err := rows.Scan(
			&l.ID, &l.ContractID, &l.LineNumber, &l.Description, &l.AmountTxn, &l.AmountBase,
			&l.RecognitionMethod, &l.RecognitionStart, &l.RecognitionEnd,
			&l.DeferredAccountID, &l.RevenueAccountID, &l.Status,
		); err != nil {
			return nil, fmt.Errorf("scan contract line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contract lines: %w", err)
	}
	return lines, nil
}

func insertLines(ctx context.Context, tx pgx.Tx, contractID int64, lines []ContractLineInput) error {
	for i, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO contract_lines (contract_id, line_number, description, amount_txn, amount_base,
			                            recognition_method, recognition_start, recognition_end,
			                            deferred_account_id, revenue_account_id, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			contractID, i+1, l.Description, l.AmountTxn, l.AmountBase,
			l.RecognitionMethod, l.RecognitionStart, l.RecognitionEnd,
			l.DeferredAccountID, l.RevenueAccountID, l.Status,
		); err != nil {
			return fmt.Errorf("insert contract line %d: %w", i+1, err)
		}
	}
	return nil
}

func writeAmendment(ctx context.Context, tx pgx.Tx, scope Scope, contractID int64, versionBefore, versionAfter int, reason string, diff map[string]any) error {
	body, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("marshal amendment diff: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO contract_amendments (contract_id, version_before, version_after, reason, diff, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		contractID, versionBefore, versionAfter, reason, body, scope.ActorID,
	); err != nil {
		return fmt.Errorf("insert amendment for contract %d: %w", contractID, err)
	}
	return nil
}

func validateContractInput(input ContractInput) error {
	if input.ContractNumber == "" {
		return validationf("contract_number", "contract number is required")
	}
	if input.Type != ContractTypeCustomer && input.Type != ContractTypeVendor {
		return validationf("contract_type", "contract type must be CUSTOMER or VENDOR")
	}
	if input.StartDate == "" {
		return validationf("start_date", "start date is required")
	}
	if len(input.Lines) == 0 {
		return validationf("lines", "at least one line is required")
	}
	for i, l := range input.Lines {
		if l.Description == "" {
			return validationf("lines", "line %d: description is required", i+1)
		}
		if !l.AmountTxn.IsPositive() || !l.AmountBase.IsPositive() {
			return validationf("lines", "line %d: amounts must be positive", i+1)
		}
		if err := validateRecognitionMethod(l.RecognitionMethod); err != nil {
			return validationf("lines", "line %d: %s", i+1, err.Error())
		}
		if l.Status != LineActive && l.Status != LineInactive {
			return validationf("lines", "line %d: status must be ACTIVE or INACTIVE", i+1)
		}
	}
	return nil
}

func validateRecognitionMethod(m RecognitionMethod) error {
	switch m {
	case RecognitionStraightLine, RecognitionMilestone, RecognitionManual:
		return nil
	}
	return validationf("recognition_method", "unknown recognition method %q", m)
}

// validateLineAccounts checks the account references on each line against the
// account family compatible with the contract type.
func (s *ContractService) validateLineAccounts(ctx context.Context, tx pgx.Tx, scope Scope, contractType ContractType, lines []ContractLineInput) error {
	deferredFamily, revenueFamily := AccountDeferredRevenue, AccountRevenue
	if contractType == ContractTypeVendor {
		deferredFamily, revenueFamily = AccountDeferredExpense, AccountExpense
	}
	for i, l := range lines {
		if l.DeferredAccountID != nil {
			if err := requireAccount(ctx, tx, scope, fmt.Sprintf("lines[%d].deferred_account_id", i), *l.DeferredAccountID, deferredFamily); err != nil {
				return err
			}
		}
		if l.RevenueAccountID != nil {
			if err := requireAccount(ctx, tx, scope, fmt.Sprintf("lines[%d].revenue_account_id", i), *l.RevenueAccountID, revenueFamily); err != nil {
				return err
			}
		}
	}
	return nil
}

// lineTotals sums ACTIVE lines only.
func (s *ContractService) lineTotals(lines []ContractLineInput) (decimal.Decimal, decimal.Decimal) {
	totalTxn, totalBase := decimal.Zero, decimal.Zero
	for _, l := range lines {
		if l.Status == LineActive {
			totalTxn = totalTxn.Add(l.AmountTxn)
			totalBase = totalBase.Add(l.AmountBase)
		}
	}
	return s.amounts.Normalize(totalTxn), s.amounts.Normalize(totalBase)
}
