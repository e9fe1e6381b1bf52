package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// GenerateBillingInput is the validated payload for one billing-generation
// attempt. The idempotency key scopes retries to the contract; the optional
// integration event UID is globally unique across tenants.
type GenerateBillingInput struct {
	ContractID          int64            `json:"contract_id"`
	DocType             DocumentType     `json:"doc_type"`
	AmountStrategy      AmountStrategy   `json:"amount_strategy"`
	BillingDate         string           `json:"billing_date"`
	DueDate             *string          `json:"due_date,omitempty"`
	AmountTxn           *decimal.Decimal `json:"amount_txn,omitempty"`
	SelectedLineIDs     []int64          `json:"selected_line_ids,omitempty"`
	IdempotencyKey      string           `json:"idempotency_key"`
	IntegrationEventUID *string          `json:"integration_event_uid,omitempty"`
}

// BillingResult carries the generated (or replayed) artifacts.
type BillingResult struct {
	Document         *CariDocument `json:"document"`
	Link             *Link         `json:"link"`
	Batch            *BillingBatch `json:"billing_batch"`
	IdempotentReplay bool          `json:"idempotent_replay"`
}

// BillingService generates billing documents idempotently. Retried requests
// with the same idempotency key replay the first outcome; the unique
// constraints on the batch table arbitrate true races.
type BillingService struct {
	pool    *pgxpool.Pool
	audit   *AuditRecorder
	amounts AmountPolicy
	links   *LinkService

	// draftNamespace scopes the draft numbering sequence.
	draftNamespace string
}

func NewBillingService(pool *pgxpool.Pool, audit *AuditRecorder, amounts AmountPolicy, links *LinkService) *BillingService {
	return &BillingService{pool: pool, audit: audit, amounts: amounts, links: links, draftNamespace: "DRAFT"}
}

// Generate runs the full billing workflow in one transaction:
// lock contract → idempotency replay checks → line/amount resolution →
// counterparty and due-date resolution → sequence reservation → batch insert
// (constraint-backed) → document + link insert → batch completion → audit.
func (s *BillingService) Generate(ctx context.Context, scope Scope, input GenerateBillingInput) (*BillingResult, error) {
	if err := validateBillingInput(input); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contract, err := lockContract(ctx, tx, scope, input.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != ContractDraft && contract.Status != ContractActive {
		return nil, fmt.Errorf("contract %d is %s, billing requires DRAFT or ACTIVE: %w",
			contract.ID, contract.Status, ErrInvalidState)
	}

	// Replay check by idempotency key.
	if existing, err := s.findBatchByKey(ctx, tx, scope, input.ContractID, input.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return s.replay(ctx, tx, scope, existing, input)
	}

	// Replay check by integration event UID; the UID must not be bound to a
	// different idempotency key.
	if input.IntegrationEventUID != nil {
		existing, err := s.findBatchByEventUID(ctx, tx, *input.IntegrationEventUID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.IdempotencyKey != input.IdempotencyKey {
				return nil, &IdempotencyConflictError{Key: *input.IntegrationEventUID, Field: "idempotency key"}
			}
			return s.replay(ctx, tx, scope, existing, input)
		}
	}

	lines, err := s.resolveSelectedLines(ctx, tx, contract, input.SelectedLineIDs)
	if err != nil {
		return nil, err
	}
	selectedTxn, selectedBase := decimal.Zero, decimal.Zero
	for _, l := range lines {
		selectedTxn = selectedTxn.Add(l.AmountTxn)
		selectedBase = selectedBase.Add(l.AmountBase)
	}
	selectedTxn = s.amounts.Normalize(selectedTxn)
	selectedBase = s.amounts.Normalize(selectedBase)
	if !s.amounts.IsPositive(selectedTxn) {
		return nil, validationf("selected_line_ids", "selected lines total must be positive")
	}

	billTxn, billBase, err := s.resolveBillAmount(input, selectedTxn, selectedBase)
	if err != nil {
		return nil, err
	}

	counterparty, err := requireCounterparty(ctx, tx, scope, contract.CounterpartyID, contract.Type)
	if err != nil {
		return nil, err
	}
	var term *PaymentTerm
	if counterparty.DefaultPaymentTermID != nil {
		term, err = getPaymentTerm(ctx, tx, scope.TenantID, *counterparty.DefaultPaymentTermID)
		if err != nil {
			return nil, err
		}
	}

	dueDate, err := resolveDueDate(input, term)
	if err != nil {
		return nil, err
	}

	direction := contract.Type.Direction()
	docNumber, err := s.reserveDraftNumber(ctx, tx, scope, direction, input.BillingDate)
	if err != nil {
		return nil, err
	}

	batchID, winner, err := s.insertBatch(ctx, tx, scope, input, billTxn, billBase)
	if err != nil {
		return nil, err
	}
	if !winner {
		// A concurrent attempt inserted the batch first. Replay it if its
		// row is visible; otherwise the winner has not committed yet and
		// the caller must retry.
		existing, err := s.findBatchByKey(ctx, tx, scope, input.ContractID, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("billing batch for key %q exists but is not yet visible, retry: %w",
				input.IdempotencyKey, ErrIntegrity)
		}
		return s.replay(ctx, tx, scope, existing, input)
	}

	fxRate := decimal.NewFromInt(1)
	if s.amounts.IsPositive(billTxn) {
		fxRate = s.amounts.NormalizeFx(billBase.Div(billTxn))
	}

	var docID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO cari_documents (tenant_id, legal_entity_id, counterparty_id, direction, doc_type,
		                            status, document_number, document_date, due_date, currency, fx_rate,
		                            amount_txn, amount_base, open_amount_txn, open_amount_base,
		                            integration_link_status)
		VALUES ($1, $2, $3, $4, $5, 'DRAFT', $6, $7, $8, $9, $10, $11, $12, $11, $12, 'NONE')
		RETURNING id`,
		scope.TenantID, scope.LegalEntityID, contract.CounterpartyID, direction, input.DocType,
		docNumber, input.BillingDate, dueDate, contract.Currency, fxRate,
		billTxn, billBase,
	).Scan(&docID)
	if err != nil {
		return nil, fmt.Errorf("insert generated document: %w", err)
	}

	var linkID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO contract_document_links (tenant_id, contract_id, document_id, link_type,
		                                     amount_txn, amount_base, contract_currency,
		                                     document_currency, fx_rate, created_by)
		VALUES ($1, $2, $3, 'BILLING', $4, $5, $6, $6, $7, $8)
		RETURNING id`,
		scope.TenantID, input.ContractID, docID, billTxn, billBase,
		contract.Currency, fxRate, scope.ActorID,
	).Scan(&linkID)
	if err != nil {
		return nil, fmt.Errorf("insert billing link: %w", err)
	}

	// The batch flips to COMPLETED only after both inserts succeeded; a
	// failure above rolls the batch row back with everything else.
	if _, err := tx.Exec(ctx, `
		UPDATE contract_billing_batches
		SET status = 'COMPLETED', generated_document_id = $1, generated_link_id = $2, completed_at = NOW()
		WHERE id = $3`,
		docID, linkID, batchID,
	); err != nil {
		return nil, fmt.Errorf("complete billing batch %d: %w", batchID, err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE cari_documents SET integration_link_status = 'LINKED' WHERE id = $1", docID,
	); err != nil {
		return nil, fmt.Errorf("mark document %d linked: %w", docID, err)
	}

	if err := s.audit.Record(ctx, tx, scope, "billing.generate", "contract_billing_batch", batchID, map[string]any{
		"contract_id":     input.ContractID,
		"doc_type":        input.DocType,
		"amount_strategy": input.AmountStrategy,
		"document_id":     docID,
		"link_id":         linkID,
		"amount_txn":      billTxn,
		"amount_base":     billBase,
	}); err != nil {
		return nil, err
	}

	result, err := s.loadResult(ctx, tx, scope, batchID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit billing generation: %w", err)
	}
	return result, nil
}

// ── idempotency ──────────────────────────────────────────────────────────────

func validateBillingInput(input GenerateBillingInput) error {
	switch input.DocType {
	case DocTypeInvoice, DocTypeAdvance, DocTypeAdjustment:
	default:
		return validationf("doc_type", "unknown document type %q", input.DocType)
	}
	switch input.AmountStrategy {
	case StrategyFull:
		if input.AmountTxn != nil {
			return validationf("amount_txn", "explicit amount is not allowed with FULL strategy")
		}
	case StrategyPartial, StrategyMilestone:
		if input.AmountTxn == nil {
			return validationf("amount_txn", "explicit amount is required for %s strategy", input.AmountStrategy)
		}
	default:
		return validationf("amount_strategy", "unknown amount strategy %q", input.AmountStrategy)
	}
	if input.IdempotencyKey == "" {
		return validationf("idempotency_key", "idempotency key is required")
	}
	if _, err := time.Parse("2006-01-02", input.BillingDate); err != nil {
		return validationf("billing_date", "billing date must be YYYY-MM-DD")
	}
	if input.DueDate != nil {
		if _, err := time.Parse("2006-01-02", *input.DueDate); err != nil {
			return validationf("due_date", "due date must be YYYY-MM-DD")
		}
	}
	return nil
}

const batchSelect = `
	SELECT id, tenant_id, legal_entity_id, contract_id, idempotency_key, integration_event_uid,
	       doc_type, amount_strategy, billing_date::text, due_date::text, amount_txn, amount_base,
	       selected_line_ids, status, generated_document_id, generated_link_id, created_at, completed_at
	FROM contract_billing_batches`

func (s *BillingService) findBatchByKey(ctx context.Context, tx pgx.Tx, scope Scope, contractID int64, key string) (*BillingBatch, error) {
	b := &BillingBatch{}
	err := scanBatch(tx.QueryRow(ctx, batchSelect+`
		WHERE tenant_id = $1 AND legal_entity_id = $2 AND contract_id = $3 AND idempotency_key = $4`,
		scope.TenantID, scope.LegalEntityID, contractID, key), b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find billing batch by key: %w", err)
	}
	return b, nil
}

func (s *BillingService) findBatchByEventUID(ctx context.Context, tx pgx.Tx, uid string) (*BillingBatch, error) {
	b := &BillingBatch{}
	err := scanBatch(tx.QueryRow(ctx, batchSelect+" WHERE integration_event_uid = $1", uid), b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find billing batch by event uid: %w", err)
	}
	return b, nil
}

func scanBatch(row pgx.Row, b *BillingBatch) error {
	return row.Scan(
		&b.ID, &b.TenantID, &b.LegalEntityID, &b.ContractID, &b.IdempotencyKey, &b.IntegrationEventUID,
		&b.DocType, &b.AmountStrategy, &b.BillingDate, &b.DueDate, &b.AmountTxn, &b.AmountBase,
		&b.SelectedLineIDs, &b.Status, &b.GeneratedDocumentID, &b.GeneratedLinkID, &b.CreatedAt, &b.CompletedAt,
	)
}

// verifyFingerprint compares the stored batch against a new request field by
// field. Any divergence is an IdempotencyConflict, never a silent replay.
func (s *BillingService) verifyFingerprint(batch *BillingBatch, input GenerateBillingInput) error {
	if batch.DocType != input.DocType {
		return &IdempotencyConflictError{Key: input.IdempotencyKey, Field: "doc type"}
	}
	if batch.AmountStrategy != input.AmountStrategy {
		return &IdempotencyConflictError{Key: input.IdempotencyKey, Field: "amount strategy"}
	}
	if batch.BillingDate != input.BillingDate {
		return &IdempotencyConflictError{Key: input.IdempotencyKey, Field: "billing date"}
	}
	if !equalOptString(batch.DueDate, input.DueDate) {
		return &IdempotencyConflictError{Key: input.IdempotencyKey, Field: "due date"}
	}
	if input.AmountTxn != nil && !s.amounts.Eq(batch.AmountTxn, *input.AmountTxn) {
		return &IdempotencyConflictError{Key: input.IdempotencyKey, Field: "amount"}
	}
	if !equalIDSet(batch.SelectedLineIDs, input.SelectedLineIDs) {
		return &IdempotencyConflictError{Key: input.IdempotencyKey, Field: "selected line set"}
	}
	if input.IntegrationEventUID != nil && batch.IntegrationEventUID != nil &&
		*input.IntegrationEventUID != *batch.IntegrationEventUID {
		return &IdempotencyConflictError{Key: input.IdempotencyKey, Field: "integration event uid"}
	}
	return nil
}

// replay returns the previously generated artifacts for a matching retry.
func (s *BillingService) replay(ctx context.Context, tx pgx.Tx, scope Scope, batch *BillingBatch, input GenerateBillingInput) (*BillingResult, error) {
	if err := s.verifyFingerprint(batch, input); err != nil {
		return nil, err
	}
	if batch.Status != BatchCompleted {
		return nil, fmt.Errorf("billing batch %d has status %s, cannot replay: %w",
			batch.ID, batch.Status, ErrIntegrity)
	}
	result, err := s.loadResult(ctx, tx, scope, batch.ID, true)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replay read: %w", err)
	}
	return result, nil
}

// loadResult reads back batch, document and link as one consistent view.
func (s *BillingService) loadResult(ctx context.Context, tx pgx.Tx, scope Scope, batchID int64, replay bool) (*BillingResult, error) {
	batch := &BillingBatch{}
	if err := scanBatch(tx.QueryRow(ctx, batchSelect+" WHERE id = $1", batchID), batch); err != nil {
		return nil, fmt.Errorf("read billing batch %d: %w", batchID, err)
	}
	if batch.GeneratedDocumentID == nil || batch.GeneratedLinkID == nil {
		return nil, fmt.Errorf("billing batch %d is missing generated pointers: %w", batchID, ErrIntegrity)
	}

	doc, err := fetchDocument(ctx, tx, scope, *batch.GeneratedDocumentID)
	if err != nil {
		return nil, err
	}
	link, err := s.links.readLink(ctx, tx, scope, *batch.GeneratedLinkID)
	if err != nil {
		return nil, err
	}
	return &BillingResult{Document: doc, Link: link, Batch: batch, IdempotentReplay: replay}, nil
}

// ── resolution steps ─────────────────────────────────────────────────────────

// resolveSelectedLines returns all ACTIVE lines, or the explicit subset.
// Unknown or inactive ids fail.
func (s *BillingService) resolveSelectedLines(ctx context.Context, tx pgx.Tx, contract *Contract, selected []int64) ([]ContractLine, error) {
	lines, err := fetchLines(ctx, tx, contract.ID)
	if err != nil {
		return nil, err
	}
	active := make(map[int64]ContractLine)
	var all []ContractLine
	for _, l := range lines {
		if l.Status == LineActive {
			active[l.ID] = l
			all = append(all, l)
		}
	}
	if len(selected) == 0 {
		if len(all) == 0 {
			return nil, validationf("selected_line_ids", "contract %d has no active lines", contract.ID)
		}
		return all, nil
	}

	seen := make(map[int64]bool, len(selected))
	var out []ContractLine
	for _, id := range selected {
		if seen[id] {
			continue
		}
		seen[id] = true
		l, ok := active[id]
		if !ok {
			return nil, validationf("selected_line_ids", "line %d is not an active line of contract %d", id, contract.ID)
		}
		out = append(out, l)
	}
	return out, nil
}

// resolveBillAmount applies the amount strategy: FULL takes the selected
// total; PARTIAL and MILESTONE take the caller amount, bounded by it. The
// base amount follows the selected lines' txn→base ratio.
func (s *BillingService) resolveBillAmount(input GenerateBillingInput, selectedTxn, selectedBase decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if input.AmountStrategy == StrategyFull {
		return selectedTxn, selectedBase, nil
	}
	amount := s.amounts.Normalize(*input.AmountTxn)
	if !s.amounts.IsPositive(amount) {
		return decimal.Zero, decimal.Zero, validationf("amount_txn", "billing amount must be positive")
	}
	if !s.amounts.LtOrEq(amount, selectedTxn) {
		return decimal.Zero, decimal.Zero, validationf("amount_txn",
			"billing amount %s exceeds selected lines total %s", amount, selectedTxn)
	}
	base := s.amounts.Normalize(amount.Mul(selectedBase).Div(selectedTxn))
	return amount, base, nil
}

// resolveDueDate: an explicit due date wins; otherwise INVOICE documents get
// billing date + term due days + grace days; everything else has none.
// The due date must not precede the billing date.
func resolveDueDate(input GenerateBillingInput, term *PaymentTerm) (*string, error) {
	billing, err := time.Parse("2006-01-02", input.BillingDate)
	if err != nil {
		return nil, validationf("billing_date", "billing date must be YYYY-MM-DD")
	}
	if input.DueDate != nil {
		due, err := time.Parse("2006-01-02", *input.DueDate)
		if err != nil {
			return nil, validationf("due_date", "due date must be YYYY-MM-DD")
		}
		if due.Before(billing) {
			return nil, validationf("due_date", "due date %s precedes billing date %s", *input.DueDate, input.BillingDate)
		}
		return input.DueDate, nil
	}
	if input.DocType == DocTypeInvoice && term != nil {
		due := billing.AddDate(0, 0, term.DueDays+term.GraceDays).Format("2006-01-02")
		return &due, nil
	}
	return nil, nil
}

// reserveDraftNumber increments the per-scope sequence counter and formats
// the draft document number. The ON CONFLICT upsert locks the counter row,
// serializing concurrent generation within the same scope without gaps.
func (s *BillingService) reserveDraftNumber(ctx context.Context, tx pgx.Tx, scope Scope, direction DocumentDirection, billingDate string) (string, error) {
	billing, err := time.Parse("2006-01-02", billingDate)
	if err != nil {
		return "", validationf("billing_date", "billing date must be YYYY-MM-DD")
	}
	fiscalYear := billing.Year()

	var lastNumber int64
	err = tx.QueryRow(ctx, `
		INSERT INTO document_sequences (tenant_id, legal_entity_id, direction, namespace, fiscal_year, last_number)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (tenant_id, legal_entity_id, direction, namespace, fiscal_year)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number`,
		scope.TenantID, scope.LegalEntityID, direction, s.draftNamespace, fiscalYear,
	).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("reserve draft sequence: %w", err)
	}
	return fmt.Sprintf("%s-%s-%d-%06d", s.draftNamespace, direction, fiscalYear, lastNumber), nil
}

// insertBatch inserts the PENDING batch row. The idempotency-key constraint
// is handled as control flow: ON CONFLICT DO NOTHING yields no row for the
// loser of a race, which the caller turns into a replay.
// insertBatch stores the line ids as the caller requested them (empty for
// "all active lines"), so a retried request fingerprints against what it
// asked for, not against what the first attempt resolved.
func (s *BillingService) insertBatch(ctx context.Context, tx pgx.Tx, scope Scope, input GenerateBillingInput, billTxn, billBase decimal.Decimal) (int64, bool, error) {
	requestedIDs := input.SelectedLineIDs
	if requestedIDs == nil {
		requestedIDs = []int64{}
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO contract_billing_batches (tenant_id, legal_entity_id, contract_id, idempotency_key,
		                                      integration_event_uid, doc_type, amount_strategy, billing_date,
		                                      due_date, amount_txn, amount_base, selected_line_ids, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'PENDING')
		ON CONFLICT ON CONSTRAINT contract_billing_batches_idem_key DO NOTHING
		RETURNING id`,
		scope.TenantID, scope.LegalEntityID, input.ContractID, input.IdempotencyKey,
		input.IntegrationEventUID, input.DocType, input.AmountStrategy, input.BillingDate,
		input.DueDate, billTxn, billBase, requestedIDs,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		if isUniqueViolation(err, "contract_billing_batches_event_uid_key") {
			return 0, false, &IdempotencyConflictError{Key: deref(input.IntegrationEventUID), Field: "idempotency key"}
		}
		return 0, false, fmt.Errorf("insert billing batch: %w", err)
	}
	return id, true, nil
}

// fetchDocument reads a document without locking it.
func fetchDocument(ctx context.Context, tx pgx.Tx, scope Scope, documentID int64) (*CariDocument, error) {
	d := &CariDocument{}
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, counterparty_id, direction, doc_type, status,
		       document_number, document_date::text, due_date::text, currency, fx_rate,
		       amount_txn, amount_base, open_amount_txn, open_amount_base,
		       integration_link_status, created_at
		FROM cari_documents
		WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3`,
		documentID, scope.TenantID, scope.LegalEntityID,
	).Scan(
		&d.ID, &d.TenantID, &d.LegalEntityID, &d.CounterpartyID, &d.Direction, &d.DocType, &d.Status,
		&d.DocumentNumber, &d.DocumentDate, &d.DueDate, &d.Currency, &d.FxRate,
		&d.AmountTxn, &d.AmountBase, &d.OpenAmountTxn, &d.OpenAmountBase,
		&d.IntegrationLinkStatus, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", documentID, ErrNotFound)
		}
		return nil, fmt.Errorf("read document %d: %w", documentID, err)
	}
	return d, nil
}

func equalOptString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// equalIDSet compares two id lists as sets.
func equalIDSet(a, b []int64) bool {
	as := make(map[int64]bool, len(a))
	for _, id := range a {
		as[id] = true
	}
	bs := make(map[int64]bool, len(b))
	for _, id := range b {
		bs[id] = true
	}
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if !bs[id] {
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
